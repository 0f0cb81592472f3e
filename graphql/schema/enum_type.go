package schema

import (
	"fmt"

	"github.com/solvent-graphql/engine/graphql/ast"
)

type EnumType struct {
	Name        string
	Description string
	Directives  []*Directive
	Values      map[string]*EnumValueDefinition
}

type EnumValueDefinition struct {
	Description string
	Directives  []*Directive

	// Value is the Go-side representation handed to and returned from resolvers. If nil, the
	// value's name is used as its Go representation.
	Value interface{}

	DeprecationReason string
}

func (t *EnumType) String() string {
	return t.Name
}

func (t *EnumType) IsInputType() bool {
	return true
}

func (t *EnumType) IsOutputType() bool {
	return true
}

func (t *EnumType) IsSubTypeOf(other Type) bool {
	return t.IsSameType(other)
}

func (t *EnumType) IsSameType(other Type) bool {
	return t == other
}

func (t *EnumType) TypeName() string {
	return t.Name
}

func (d *EnumType) shallowValidate() error {
	if len(d.Values) == 0 {
		return fmt.Errorf("%v must have at least one field", d.Name)
	} else {
		for name := range d.Values {
			if !isName(name) || name == "true" || name == "false" || name == "null" {
				return fmt.Errorf("illegal field name: %v", name)
			}
		}
	}
	return nil
}

func IsEnumType(t Type) bool {
	_, ok := t.(*EnumType)
	return ok
}

func (t *EnumType) valueOf(name string) interface{} {
	if def := t.Values[name]; def != nil && def.Value != nil {
		return def.Value
	}
	return name
}

func (t *EnumType) nameOf(v interface{}) (string, bool) {
	for name, def := range t.Values {
		if def.Value != nil {
			if def.Value == v {
				return name, true
			}
			continue
		}
		if s, ok := v.(string); ok && s == name {
			return name, true
		}
	}
	return "", false
}

func (t *EnumType) CoerceLiteral(v ast.Value) (interface{}, error) {
	enumValue, ok := v.(*ast.EnumValue)
	if !ok {
		return nil, fmt.Errorf("cannot coerce to %v", t.Name)
	}
	if _, ok := t.Values[enumValue.Value]; !ok {
		return nil, fmt.Errorf("%v is not a valid value for %v", enumValue.Value, t.Name)
	}
	return t.valueOf(enumValue.Value), nil
}

func (t *EnumType) CoerceVariableValue(v interface{}) (interface{}, error) {
	name, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("cannot coerce to %v", t.Name)
	}
	if _, ok := t.Values[name]; !ok {
		return nil, fmt.Errorf("%v is not a valid value for %v", name, t.Name)
	}
	return t.valueOf(name), nil
}

func (t *EnumType) CoerceResult(v interface{}) (interface{}, error) {
	if name, ok := t.nameOf(v); ok {
		return name, nil
	}
	return nil, fmt.Errorf("cannot represent value as %v", t.Name)
}
