package backend

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

var multipartOverhead = int64(8 * 1024) // rough padding per request

// sizeLimit caps the request body at maxBodyBytes plus multipart overhead. Reads past the
// limit fail with *http.MaxBytesError, reported as 413 Request Entity Too Large.
func sizeLimit(maxBodyBytes int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.ContentLength > maxBodyBytes+multipartOverhead {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
			}
			req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes+multipartOverhead)
			return next(c)
		}
	}
}
