package schema

import (
	"fmt"
	"reflect"

	"github.com/solvent-graphql/engine/graphql/ast"
)

type ListType struct {
	Type Type
}

func NewListType(t Type) *ListType {
	return &ListType{
		Type: t,
	}
}

func (t *ListType) String() string {
	return t.Type.String() + "!"
}

func (t *ListType) IsInputType() bool {
	return t.Type.IsInputType()
}

func (t *ListType) IsOutputType() bool {
	return t.Type.IsOutputType()
}

func (t *ListType) IsSubTypeOf(other Type) bool {
	return t.IsSameType(other) || t.Type.IsSubTypeOf(other)
}

func (t *ListType) IsSameType(other Type) bool {
	if nn, ok := other.(*ListType); ok {
		return t.Type.IsSameType(nn.Type)
	}
	return false
}

func (t *ListType) Unwrap() Type {
	return t.Type
}

func (t *ListType) shallowValidate() error {
	return nil
}

func IsListType(t Type) bool {
	_, ok := t.(*ListType)
	return ok
}

func (t *ListType) coerceVariableValue(v interface{}, allowItemToListCoercion bool) (interface{}, error) {
	rv := reflect.ValueOf(v)
	if rv.IsValid() && rv.Kind() == reflect.Slice {
		result := make([]interface{}, rv.Len())
		for i := range result {
			coerced, err := coerceVariableValue(rv.Index(i).Interface(), t.Type, allowItemToListCoercion)
			if err != nil {
				return nil, err
			}
			result[i] = coerced
		}
		return result, nil
	}
	if allowItemToListCoercion {
		coerced, err := coerceVariableValue(v, t.Type, allowItemToListCoercion)
		if err != nil {
			return nil, err
		}
		return []interface{}{coerced}, nil
	}
	return nil, fmt.Errorf("expected a list")
}

func (t *ListType) coerceLiteral(from ast.Value, variableValues map[string]interface{}, allowItemToListCoercion bool) (interface{}, error) {
	if list, ok := from.(*ast.ListValue); ok {
		result := make([]interface{}, len(list.Values))
		for i, v := range list.Values {
			coerced, err := coerceLiteral(v, t.Type, variableValues, allowItemToListCoercion)
			if err != nil {
				return nil, err
			}
			result[i] = coerced
		}
		return result, nil
	}
	if allowItemToListCoercion {
		coerced, err := coerceLiteral(from, t.Type, variableValues, allowItemToListCoercion)
		if err != nil {
			return nil, err
		}
		return []interface{}{coerced}, nil
	}
	return nil, fmt.Errorf("expected a list")
}
