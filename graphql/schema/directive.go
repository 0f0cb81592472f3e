package schema

import (
	"fmt"
	"strings"
)

type DirectiveLocation string

const (
	DirectiveLocationQuery              = "QUERY"
	DirectiveLocationMutation           = "MUTATION"
	DirectiveLocationSubscription       = "SUBSCRIPTION"
	DirectiveLocationField              = "FIELD"
	DirectiveLocationFragmentDefinition = "FRAGMENT_DEFINITION"
	DirectiveLocationFragmentSpread     = "FRAGMENT_SPREAD"
	DirectiveLocationInlineFragment     = "INLINE_FRAGMENT"

	DirectiveLocationSchema               = "SCHEMA"
	DirectiveLocationScalar               = "SCALAR"
	DirectiveLocationObject               = "OBJECT"
	DirectiveLocationFieldDefinition      = "FIELD_DEFINITION"
	DirectiveLocationArgumentDefinition   = "ARGUMENT_DEFINITION"
	DirectiveLocationInterface            = "INTERFACE"
	DirectiveLocationUnion                = "UNION"
	DirectiveLocationEnum                 = "ENUM"
	DirectiveLocationEnumValue            = "ENUM_VALUE"
	DirectiveLocationInputObject          = "INPUT_OBJECT"
	DirectiveLocationInputFieldDefinition = "INPUT_FIELD_DEFINITION"
)

type DirectiveDefinition struct {
	Description string
	Arguments   map[string]*InputValueDefinition
	Locations   []DirectiveLocation

	// If non-nil, this function will be invoked during field collection for each selection with
	// this directive present. If the function returns false, the selection will be skipped.
	FieldCollectionFilter func(arguments map[string]interface{}) bool
}

func referencesDirective(node interface{}, directive *DirectiveDefinition) bool {
	visited := map[interface{}]struct{}{}
	foundReference := false

	Inspect(node, func(node interface{}) bool {
		if _, ok := visited[node]; ok {
			return false
		}
		visited[node] = struct{}{}
		if node == directive {
			foundReference = true
		}
		return !foundReference
	})

	return foundReference
}

func (d *DirectiveDefinition) shallowValidate() error {
	for name, arg := range d.Arguments {
		if !isName(name) || strings.HasPrefix(name, "__") {
			return fmt.Errorf("illegal directive argument name: %v", name)
		} else if referencesDirective(arg, d) {
			return fmt.Errorf("directive is self-referencing via %v argument", name)
		}
	}
	return nil
}

type Directive struct {
	Definition *DirectiveDefinition
	Arguments  []*Argument
}

var SkipDirective = &DirectiveDefinition{
	Description: "The @skip directive may be provided for fields, fragment spreads, and inline fragments, and allows for conditional exclusion during execution as described by the if argument.",
	Arguments: map[string]*InputValueDefinition{
		"if": &InputValueDefinition{
			Type: NewNonNullType(BooleanType),
		},
	},
	Locations: []DirectiveLocation{DirectiveLocationField, DirectiveLocationFragmentSpread, DirectiveLocationInlineFragment},
	FieldCollectionFilter: func(arguments map[string]interface{}) bool {
		return !arguments["if"].(bool)
	},
}

var IncludeDirective = &DirectiveDefinition{
	Description: "The @include directive may be provided for fields, fragment spreads, and inline fragments, and allows for conditional inclusion during execution as described by the if argument.",
	Arguments: map[string]*InputValueDefinition{
		"if": &InputValueDefinition{
			Type: NewNonNullType(BooleanType),
		},
	},
	Locations: []DirectiveLocation{DirectiveLocationField, DirectiveLocationFragmentSpread, DirectiveLocationInlineFragment},
	FieldCollectionFilter: func(arguments map[string]interface{}) bool {
		return arguments["if"].(bool)
	},
}

// DeferDirective allows fragment spreads and inline fragments to be executed as a separate,
// later payload instead of blocking the primary response. It is handled directly during field
// collection rather than via FieldCollectionFilter, since it redirects collected fields into a
// side channel instead of excluding them.
var DeferDirective = &DirectiveDefinition{
	Description: "The @defer directive may be provided for fragment spreads and inline fragments to inform the executor to delay delivery of the current fragment's data.",
	Arguments: map[string]*InputValueDefinition{
		"if": &InputValueDefinition{
			Type:         NewNonNullType(BooleanType),
			DefaultValue: true,
		},
		"label": &InputValueDefinition{
			Type: StringType,
		},
	},
	Locations: []DirectiveLocation{DirectiveLocationFragmentSpread, DirectiveLocationInlineFragment},
}

// StreamDirective allows a list field's items to be delivered incrementally, beginning with
// initialCount items in the primary response and followed by one payload per remaining item.
var StreamDirective = &DirectiveDefinition{
	Description: "The @stream directive may be provided for list fields to inform the executor to stream the remaining list items after the first initialCount have been delivered.",
	Arguments: map[string]*InputValueDefinition{
		"if": &InputValueDefinition{
			Type:         NewNonNullType(BooleanType),
			DefaultValue: true,
		},
		"label": &InputValueDefinition{
			Type: StringType,
		},
		"initialCount": &InputValueDefinition{
			Type:         NewNonNullType(IntType),
			DefaultValue: 0,
		},
	},
	Locations: []DirectiveLocation{DirectiveLocationField},
}
