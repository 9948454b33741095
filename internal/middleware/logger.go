package middleware

import (
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"
)

// RequestLogger logs one structured line per request.  It must run after
// echo's RequestID middleware so the id is already on the response.
func RequestLogger(log *logrus.Entry) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if err != nil {
                c.Error(err) // let echo write the response so the status is final
            }

            req := c.Request()
            res := c.Response()
            entry := log.WithFields(logrus.Fields{
                "request_id": res.Header().Get(echo.HeaderXRequestID),
                "method":     req.Method,
                "path":       req.URL.Path,
                "route":      c.Path(),
                "status":     res.Status,
                "latency_ms": time.Since(start).Milliseconds(),
                "remote_ip":  c.RealIP(),
            })
            switch {
            case err != nil:
                entry.WithError(err).Error("request failed")
            case res.Status >= 500:
                entry.Error("request completed")
            case res.Status >= 400:
                entry.Warn("request completed")
            default:
                entry.Info("request completed")
            }
            return nil
        }
    }
}
