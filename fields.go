package apifu

import (
	"fmt"
	"reflect"

	"github.com/solvent-graphql/engine/graphql"
)

func fieldValue(object interface{}, name string) interface{} {
	v := reflect.ValueOf(object)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	return v.FieldByName(name).Interface()
}

// NonEmptyString returns a field that resolves to a string if the field's value is non-empty.
// Otherwise, the field resolves to nil.
func NonEmptyString(fieldName string) *graphql.FieldDefinition {
	return &graphql.FieldDefinition{
		Type: graphql.StringType,
		Cost: graphql.FieldResolverCost(0),
		Resolve: func(ctx *graphql.FieldContext) (interface{}, error) {
			if s := fieldValue(ctx.Object, fieldName); s != "" {
				return s, nil
			}
			return nil, nil
		},
	}
}

// NonNull returns a non-null field that resolves to the given type.
func NonNull(t graphql.Type, fieldName string) *graphql.FieldDefinition {
	return &graphql.FieldDefinition{
		Type: graphql.NewNonNullType(t),
		Cost: graphql.FieldResolverCost(0),
		Resolve: func(ctx *graphql.FieldContext) (interface{}, error) {
			return fieldValue(ctx.Object, fieldName), nil
		},
	}
}

// OwnID returns an "id" field definition for a node type: it serializes the object's own model id
// (read from fieldName) into the global id clients see, using the Config.SerializeNodeId the node
// type was registered under.
func OwnID(fieldName string) *graphql.FieldDefinition {
	return &graphql.FieldDefinition{
		Type: graphql.NewNonNullType(graphql.IDType),
		Cost: graphql.FieldResolverCost(0),
		Resolve: func(ctx *graphql.FieldContext) (interface{}, error) {
			api := ctxAPI(ctx.Context)
			model := normalizeModelType(reflect.TypeOf(ctx.Object))
			nodeType, ok := api.config.nodeTypesByModel[model]
			if !ok {
				return nil, fmt.Errorf("no node type registered for %v", model)
			}
			return api.config.SerializeNodeId(nodeType.Id, fieldValue(ctx.Object, fieldName)), nil
		},
	}
}

// Node returns a field that resolves to the node type previously returned by Config.AddNodeType,
// looking the referenced node up by the model id stored in fieldName. If no node exists with that
// id, the field resolves to nil.
func Node(objectType *graphql.ObjectType, fieldName string) *graphql.FieldDefinition {
	return &graphql.FieldDefinition{
		Type: objectType,
		Cost: graphql.FieldResolverCost(0),
		Resolve: func(ctx *graphql.FieldContext) (interface{}, error) {
			api := ctxAPI(ctx.Context)
			nodeType, ok := api.config.nodeTypesByObjectType[objectType]
			if !ok {
				return nil, fmt.Errorf("%v is not a node type", objectType.Name)
			}
			modelId := fieldValue(ctx.Object, fieldName)
			if isNil(modelId) {
				return nil, nil
			}
			return api.resolveNodeById(ctx.Context, nodeType, modelId)
		},
	}
}

// NonNullNodeID returns a non-null field that resolves fieldName's model id, for the node type
// registered for modelType, to its serialized global id. Unlike Node, this doesn't look the node
// up; it just encodes the id, which is cheaper when the caller only needs the id back.
func NonNullNodeID(modelType reflect.Type, fieldName string) *graphql.FieldDefinition {
	model := normalizeModelType(modelType)
	return &graphql.FieldDefinition{
		Type: graphql.NewNonNullType(graphql.IDType),
		Cost: graphql.FieldResolverCost(0),
		Resolve: func(ctx *graphql.FieldContext) (interface{}, error) {
			api := ctxAPI(ctx.Context)
			nodeType, ok := api.config.nodeTypesByModel[model]
			if !ok {
				return nil, fmt.Errorf("no node type registered for %v", model)
			}
			return api.config.SerializeNodeId(nodeType.Id, fieldValue(ctx.Object, fieldName)), nil
		},
	}
}
