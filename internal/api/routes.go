package api

import (
	"errors"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// NewApp builds the fiber application with middleware and all routes
// registered. The caller owns Listen and Shutdown.
func NewApp(records *RecordHandler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "mailsift",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,OPTIONS",
	}))

	api := app.Group("/api/v1")
	api.Get("/records/search", records.Search)
	api.Get("/records/:id", records.Get)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	return app
}

// decodeRecordID unescapes a record identifier path segment. Record
// IDs embed a slash, so clients send them percent-encoded.
func decodeRecordID(raw string) (string, error) {
	id, err := url.PathUnescape(raw)
	if err != nil {
		return "", err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("empty record id")
	}
	return id, nil
}
