package schema

import (
	"fmt"

	"github.com/solvent-graphql/engine/graphql/ast"
)

type ScalarType struct {
	Name        string
	Description string
	Directives  []*Directive

	// LiteralCoercion should return nil if coercion from the given AST value is impossible.
	LiteralCoercion func(ast.Value) interface{}

	// VariableValueCoercion should return nil if coercion from the given variable value is
	// impossible.
	VariableValueCoercion func(interface{}) interface{}

	// ResultCoercion should return nil if the given resolver result cannot be serialized as this
	// scalar.
	ResultCoercion func(interface{}) interface{}
}

func (t *ScalarType) String() string {
	return t.Name
}

func (t *ScalarType) IsInputType() bool {
	return true
}

func (t *ScalarType) IsOutputType() bool {
	return true
}

func (t *ScalarType) IsSubTypeOf(other Type) bool {
	return t.IsSameType(other)
}

func (t *ScalarType) IsSameType(other Type) bool {
	return t == other
}

func (t *ScalarType) TypeName() string {
	return t.Name
}

func (t *ScalarType) CoerceLiteral(v ast.Value) (interface{}, error) {
	if t.LiteralCoercion == nil {
		return nil, fmt.Errorf("%v does not support literal coercion", t.Name)
	}
	if coerced := t.LiteralCoercion(v); coerced != nil {
		return coerced, nil
	}
	return nil, fmt.Errorf("cannot coerce to %v", t.Name)
}

func (t *ScalarType) CoerceVariableValue(v interface{}) (interface{}, error) {
	if t.VariableValueCoercion == nil {
		return nil, fmt.Errorf("%v does not support variable value coercion", t.Name)
	}
	if coerced := t.VariableValueCoercion(v); coerced != nil {
		return coerced, nil
	}
	return nil, fmt.Errorf("cannot coerce to %v", t.Name)
}

func (t *ScalarType) CoerceResult(v interface{}) (interface{}, error) {
	if t.ResultCoercion == nil {
		return nil, fmt.Errorf("%v does not support result coercion", t.Name)
	}
	if coerced := t.ResultCoercion(v); coerced != nil {
		return coerced, nil
	}
	return nil, fmt.Errorf("cannot represent value as %v", t.Name)
}

func IsScalarType(t Type) bool {
	_, ok := t.(*ScalarType)
	return ok
}
