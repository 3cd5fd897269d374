// Package graphql assembles the root GraphQL schema from the per-module query fields.
package graphql

import (
	"github.com/graphql-go/graphql"
	"github.com/ortelius/versionwatch/graphql/modules/items"
)

// CreateSchema builds the root schema.
func CreateSchema(store items.Reader) (graphql.Schema, error) {
	rootQuery := graphql.NewObject(graphql.ObjectConfig{
		Name:   "RootQuery",
		Fields: items.GetQueryFields(store),
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: rootQuery,
	})
}
