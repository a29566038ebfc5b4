package bootstrap

import (
	"carbon-registry/internal/config"
	"carbon-registry/internal/interfaces/router"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// New creates the Fiber app for serverless entry points (api/ imports this package, not internal).
func New() (*fiber.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)
	app, _, _, err := router.CreateApp(cfg)
	return app, err
}
