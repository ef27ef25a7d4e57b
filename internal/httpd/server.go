// Package httpd exposes the plugin operations over HTTP. The host invokes
// POST /determine_output_block_types before allocating output blocks and
// POST /run to execute the completion.
package httpd

import (
	"context"
	"errors"
	"net/http"

	"github.com/dockhand/relay"
	"github.com/dockhand/relay/plugin"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

const bodyLimit = "8M"

// Server wraps the echo instance around a Generator.
type Server struct {
	echo      *echo.Echo
	generator *relay.Generator
	log       zerolog.Logger
}

// New builds the HTTP surface for a generator.
func New(generator *relay.Generator, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, generator: generator, log: log}

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Err(v.Error).
				Msg("request")
			return nil
		},
	}))
	e.HTTPErrorHandler = s.errorHandler

	e.GET("/health", s.health)
	e.POST("/determine_output_block_types", s.determineOutputBlockTypes)
	e.POST("/run", s.run)

	return s
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP lets tests drive the server without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) determineOutputBlockTypes(c echo.Context) error {
	var req plugin.Request[plugin.RawBlockAndTagInput]
	if err := c.Bind(&req); err != nil {
		return plugin.AsError(plugin.CodeInvalidRequest, err)
	}

	resp, err := s.generator.DetermineOutputBlockTypes(req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) run(c echo.Context) error {
	var req plugin.Request[plugin.RawBlockAndTagInputWithBlocks]
	if err := c.Bind(&req); err != nil {
		return plugin.AsError(plugin.CodeInvalidRequest, err)
	}

	resp, err := s.generator.Run(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// errorHandler renders every failure as the error envelope the host expects.
// Plugin errors carry their own status; anything else is a 500.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	code := ""
	message := err.Error()

	var perr *plugin.Error
	var herr *echo.HTTPError
	switch {
	case errors.As(err, &perr):
		if perr.StatusCode != 0 {
			status = perr.StatusCode
		}
		code = perr.Code
		message = perr.Message
	case errors.As(err, &herr):
		status = herr.Code
		if m, ok := herr.Message.(string); ok {
			message = m
		}
	}

	payload := map[string]any{"error": map[string]any{
		"code":    code,
		"message": message,
	}}
	if jsonErr := c.JSON(status, payload); jsonErr != nil {
		s.log.Error().Err(jsonErr).Msg("writing error response")
	}
}
