// Package app contains the HTTP front-end of the records API.
package app

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/influxdata/influxdb/pkg/snowflake"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/stolasapp/permits/internal/config"
	"github.com/stolasapp/permits/internal/permits"
	"github.com/stolasapp/permits/internal/sec"
)

// Records fetches the records served by /permits.
type Records interface {
	Profile() permits.Profile
	FetchRecords(ctx context.Context, limit *int) ([]permits.Record, error)
}

// Pinger reports whether the records store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// New creates the HTTP front-end.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	gate *sec.Gate,
	records Records,
	pinger Pinger,
) *echo.Echo {
	srv := echo.New()

	srv.HideBanner = true
	srv.HidePort = true
	srv.Logger.SetLevel(log.OFF)

	ids := snowflake.New(rand.IntN(1023)) //nolint:gosec,mnd // this isn't for crypto
	srv.Use(
		middleware.Recover(),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			Generator: ids.NextString,
		}),
		logRequests(logger, cfg.DevMode),
		middleware.Secure(),
		middleware.Gzip(),
	)

	handler{
		records: records,
		pinger:  pinger,
	}.register(srv, gate.Middleware())
	return srv
}

func logRequests(logger *slog.Logger, verbose bool) echo.MiddlewareFunc {
	level := slog.LevelDebug
	if verbose {
		level = slog.LevelInfo
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			latency := time.Since(start)

			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			attrs := []slog.Attr{
				slog.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				slog.String("method", req.Method),
				slog.String("uri", req.RequestURI),
				slog.String("route", c.Path()),
				slog.Duration("latency", latency),
				slog.Int("status", res.Status),
			}
			if user := sec.GetPrincipal(req.Context()).Username; user != "" {
				attrs = append(attrs, slog.String("user", user))
			}
			if err != nil {
				attrs = append(attrs, slog.Any("error", err))
			}
			lvl := level
			if res.Status >= 500 { //nolint:mnd // server errors
				lvl = slog.LevelError
			}
			logger.LogAttrs(
				req.Context(),
				lvl,
				"request handled",
				attrs...,
			)
			// the error has already been written to the response
			return nil
		}
	}
}
