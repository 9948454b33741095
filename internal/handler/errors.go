package handler

import (
    "errors"
    "fmt"
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"
)

// ErrorHandler renders errors that escape the handlers (unknown routes,
// wrong methods, recovered panics) with the same {"detail": ...} body the
// handlers use.
func ErrorHandler(log *logrus.Entry) echo.HTTPErrorHandler {
    return func(err error, c echo.Context) {
        if c.Response().Committed {
            return
        }
        code, detail := http.StatusInternalServerError, msgServerError
        var he *echo.HTTPError
        if errors.As(err, &he) {
            code = he.Code
            switch code {
            case http.StatusNotFound:
                detail = msgNotFound
            case http.StatusInternalServerError:
            default:
                detail = fmt.Sprint(he.Message)
            }
        }
        if code >= http.StatusInternalServerError {
            log.WithError(err).WithField("path", c.Request().URL.Path).Error("unhandled error")
        }

        var werr error
        if c.Request().Method == http.MethodHead {
            werr = c.NoContent(code)
        } else {
            werr = c.JSON(code, map[string]string{"detail": detail})
        }
        if werr != nil {
            log.WithError(werr).Warn("write error response")
        }
    }
}
