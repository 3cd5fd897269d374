// Package api builds the Fiber application that serves the REST, GraphQL and metrics endpoints.
package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/ortelius/versionwatch/graphql"
	gqlitems "github.com/ortelius/versionwatch/graphql/modules/items"
	"github.com/ortelius/versionwatch/restapi"
	"github.com/ortelius/versionwatch/restapi/modules/items"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewFiberApp creates and configures a Fiber app with REST, GraphQL and metrics routes.
func NewFiberApp(handlers *items.Handlers, store gqlitems.Reader) (*fiber.App, error) {
	schema, err := graphql.CreateSchema(store)
	if err != nil {
		return nil, fmt.Errorf("failed to create GraphQL schema: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:     "versionwatch API v1.0",
		BodyLimit:   4 * 1024 * 1024,
		ReadTimeout: 60 * time.Second,
	})

	app.Use(fiberrecover.New())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000,http://localhost:4000,http://127.0.0.1:3000,http://127.0.0.1:4000",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With",
		AllowCredentials: true,
		AllowMethods:     "GET, POST, HEAD, OPTIONS",
	}))

	app.Use(func(c *fiber.Ctx) error {
		c.Locals("graphql_op", "-")
		return c.Next()
	})
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${locals:graphql_op} ${latency}\n",
	}))

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	restapi.SetupRoutes(app, handlers, schema)

	return app, nil
}
