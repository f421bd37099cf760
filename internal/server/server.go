// Package server builds the Echo application serving the chat widget.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/atelier-marbre/chatbot/internal/config"
	"github.com/atelier-marbre/chatbot/internal/handler"
	"github.com/atelier-marbre/chatbot/internal/response"
)

// Server holds the Echo app and its configuration.
type Server struct {
	Echo   *echo.Echo
	Config *config.Config
}

// New builds the Echo server and registers routes. The chat handler is
// injected so tests can run the full middleware chain against fakes.
func New(cfg *config.Config, chat *handler.ChatHandler, nrApp *newrelic.Application, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(log)
	e.Server.ReadTimeout = time.Duration(cfg.Server.ReadTimeout) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.Server.WriteTimeout) * time.Second

	e.Use(echomw.Recover())
	e.Use(requestLogger(log))
	if nrApp != nil {
		e.Use(Telemetry(nrApp))
	}
	e.Use(CORS(cfg.Server.CORSAllowedOrigins))

	e.POST("/api/chat", chat.Chat)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return &Server{Echo: e, Config: cfg}
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Echo.Shutdown(shutdownCtx)
	}()
	err := s.Echo.Start(":" + s.Config.Server.Port)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// errorHandler renders every unhandled error as the widget's {"error": ...}
// envelope so the browser client can always read it. The CORS middleware has
// already attached its headers by the time this runs.
func errorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "Internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			switch status {
			case http.StatusMethodNotAllowed:
				message = "Use POST"
			case http.StatusNotFound:
				message = "Not found"
			default:
				if s, ok := he.Message.(string); ok {
					message = s
				}
			}
		}
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Int("status", status).Str("path", c.Request().URL.Path).Msg("request failed")
		}
		if writeErr := response.Error(c, status, message); writeErr != nil {
			log.Error().Err(writeErr).Msg("could not write error envelope")
		}
	}
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:   true,
		LogMethod:   true,
		LogURI:      true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			evt := log.Info()
			if v.Status >= http.StatusInternalServerError {
				evt = log.Error()
			}
			evt.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Err(v.Error).
				Msg("http request")
			return nil
		},
	})
}
