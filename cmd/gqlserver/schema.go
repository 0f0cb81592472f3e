package main

import (
	"time"

	apifu "github.com/solvent-graphql/engine"
	"github.com/solvent-graphql/engine/apiserver"
	"github.com/solvent-graphql/engine/graphql"
)

// buildSchema returns a small demo schema whose "posts" field streams its results and whose
// "author" field can be deferred, so a client exercising @defer/@stream against this server's
// HTTP and WebSocket endpoints sees more than one payload.
func buildSchema() (*graphql.Schema, error) {
	authorType := &graphql.ObjectType{
		Name: "Author",
		Fields: map[string]*graphql.FieldDefinition{
			"name": {
				Type: graphql.NewNonNullType(graphql.StringType),
				Cost: graphql.FieldResolverCost(0),
				Resolve: func(ctx *graphql.FieldContext) (interface{}, error) {
					return ctx.Object.(string), nil
				},
			},
		},
	}

	postType := &graphql.ObjectType{
		Name: "Post",
		Fields: map[string]*graphql.FieldDefinition{
			"title": {
				Type: graphql.NewNonNullType(graphql.StringType),
				Cost: graphql.FieldResolverCost(0),
				Resolve: func(ctx *graphql.FieldContext) (interface{}, error) {
					return ctx.Object.(demoPost).title, nil
				},
			},
			"author": {
				Type: authorType,
				Cost: graphql.FieldResolverCost(1),
				Resolve: apiserver.Async(func(ctx *graphql.FieldContext) (interface{}, error) {
					// simulates a resolver that's slow enough to be worth deferring.
					time.Sleep(10 * time.Millisecond)
					return ctx.Object.(demoPost).author, nil
				}),
			},
			"viewCount": {
				Type: apifu.LongIntType,
				Cost: graphql.FieldResolverCost(0),
				Resolve: func(ctx *graphql.FieldContext) (interface{}, error) {
					return ctx.Object.(demoPost).viewCount, nil
				},
			},
		},
	}

	queryType := &graphql.ObjectType{
		Name: "Query",
		Fields: map[string]*graphql.FieldDefinition{
			"posts": {
				Type: graphql.NewListType(postType),
				Cost: graphql.FieldResolverCost(len(demoPosts)),
				Resolve: func(ctx *graphql.FieldContext) (interface{}, error) {
					return demoPosts, nil
				},
			},
		},
	}

	return graphql.NewSchema(&graphql.SchemaDefinition{
		Query: queryType,
	})
}

type demoPost struct {
	title     string
	author    string
	viewCount int64
}

var demoPosts = []demoPost{
	{title: "Hello, world", author: "Ada", viewCount: 120},
	{title: "Incremental delivery", author: "Grace", viewCount: 845},
	{title: "Feature flags", author: "Margaret", viewCount: 53},
}
