// Package restapi provides the main router and initialization for REST API endpoints.
package restapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
	"github.com/ortelius/versionwatch/restapi/modules/items"
)

// SetupRoutes configures all REST API routes and the GraphQL endpoint.
func SetupRoutes(app *fiber.App, handlers *items.Handlers, schema graphql.Schema) {
	api := app.Group("/api/v1")

	api.Post("/graphql", GraphQLHandler(schema))

	itemGroup := api.Group("/items")
	itemGroup.Post("/:key/check", handlers.CheckItem)
	itemGroup.Get("/:key/history", handlers.History)
	itemGroup.Post("/:key/ai-enrichment", handlers.AIEnrichment)
}
