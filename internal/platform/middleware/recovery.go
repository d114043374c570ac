package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bloodbank/bloodbank/internal/platform/fhir"
	"github.com/bloodbank/bloodbank/internal/platform/metrics"
)

// Recovery turns a handler panic into a 500 carrying a fatal
// OperationOutcome. The panic is logged with its stack and counted by route.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}

				route := c.Path()
				if route == "" {
					route = "unmatched"
				}
				metrics.RecoveredPanics.WithLabelValues(route).Inc()

				rid, _ := c.Get("request_id").(string)
				logger.Error().
					Str("request_id", rid).
					Str("route", route).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")

				diag := "internal server error"
				if rid != "" {
					diag += " (request " + rid + ")"
				}
				err = echo.NewHTTPError(http.StatusInternalServerError, echo.Map{
					"message": "internal server error",
					"outcome": fhir.NewOperationOutcome("fatal", "exception", diag),
				})
			}()
			return next(c)
		}
	}
}
