package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"connectrpc.com/connect"
	"github.com/labstack/echo/v4"
)

// healthTimeout bounds the storage ping behind /healthz.
const healthTimeout = 2 * time.Second

type handler struct {
	records Records
	pinger  Pinger
}

func (h handler) register(e *echo.Echo, auth echo.MiddlewareFunc) {
	e.GET("/permits", h.permits, auth)
	e.GET("/healthz", h.health)
}

func (h handler) permits(c echo.Context) error {
	var limit *int
	if h.records.Profile().CallerLimit {
		var err error
		if limit, err = parseLimit(c); err != nil {
			return err
		}
	}

	records, err := h.records.FetchRecords(c.Request().Context(), limit)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, records)
}

func (h handler) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	if err := h.pinger.PingContext(ctx); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage unavailable").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// parseLimit reads the optional limit query parameter. Range checks are left
// to the query profile.
func parseLimit(c echo.Context) (*int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return nil, nil //nolint:nilnil // absent
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
	}
	return &n, nil
}

// coder is implemented by errors that carry a ConnectRPC code.
type coder interface {
	Code() connect.Code
}

// toHTTPError converts an error to an Echo HTTPError with the appropriate
// HTTP status code. Errors carrying a ConnectRPC code are mapped to their
// corresponding HTTP status codes; anything else becomes an opaque 500.
func toHTTPError(err error) error {
	if err == nil {
		return nil
	}

	// Already an HTTP error - pass through
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return err
	}

	var coded coder
	if !errors.As(err, &coded) {
		return echo.NewHTTPError(http.StatusInternalServerError,
			http.StatusText(http.StatusInternalServerError)).SetInternal(err)
	}
	// coded errors keep storage detail out of Error()
	return echo.NewHTTPError(connectCodeToHTTPStatus(coded.Code()), err.Error()).SetInternal(err)
}

// connectCodeToHTTPStatus maps ConnectRPC error codes to HTTP status codes.
// See: https://connectrpc.com/docs/protocol/#error-codes
func connectCodeToHTTPStatus(code connect.Code) int {
	switch code {
	case connect.CodeInvalidArgument, connect.CodeFailedPrecondition, connect.CodeOutOfRange:
		return http.StatusBadRequest // 400
	case connect.CodeUnauthenticated:
		return http.StatusUnauthorized // 401
	case connect.CodePermissionDenied:
		return http.StatusForbidden // 403
	case connect.CodeNotFound:
		return http.StatusNotFound // 404
	case connect.CodeCanceled:
		return http.StatusRequestTimeout // 408
	case connect.CodeAlreadyExists, connect.CodeAborted:
		return http.StatusConflict // 409
	case connect.CodeResourceExhausted:
		return http.StatusTooManyRequests // 429
	case connect.CodeUnimplemented:
		return http.StatusNotImplemented // 501
	case connect.CodeUnavailable:
		return http.StatusServiceUnavailable // 503
	case connect.CodeDeadlineExceeded:
		return http.StatusGatewayTimeout // 504
	case connect.CodeInternal, connect.CodeDataLoss, connect.CodeUnknown:
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}
