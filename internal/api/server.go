// Package api exposes the studio over HTTP for the web front-end.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/raine/kalamitra/internal/studio"
	"github.com/rs/zerolog/log"
)

// bodyLimit leaves room for multipart overhead so oversized images get the
// studio's own error instead of a bare 413.
const bodyLimit = 2 * studio.MaxUploadSize

// Server is the HTTP API.
type Server struct {
	app    *fiber.App
	studio *studio.Studio
}

// New creates the API server with all routes registered.
func New(st *studio.Studio) *Server {
	s := &Server{studio: st}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler,
		BodyLimit:             bodyLimit,
	})
	s.app.Use(recover.New())
	s.app.Use(loggerMiddleware())
	s.setupRoutes()

	return s
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves until Shutdown is called.
func (s *Server) Listen(addr string) error {
	log.Info().Str("addr", addr).Msg("http api listening")
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down http api")
	return s.app.ShutdownWithContext(ctx)
}

// customErrorHandler handles errors that escape the handlers.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	} else {
		log.Error().Err(err).Str("path", c.Path()).Msg("unhandled api error")
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}

func loggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Debug().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("duration", time.Since(start)).
			Msg("http request")
		return err
	}
}
