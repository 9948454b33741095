package router // package router defines how HTTP routes are registered for the API

import (
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/userdata-registry/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/userdata-registry/internal/metrics"    // prometheus collectors exposed on /metrics
	"github.com/iliyamo/userdata-registry/internal/middleware" // request logging
	"github.com/iliyamo/userdata-registry/internal/validation"
)

// Options tune routing behaviour.
type Options struct {
	// OptionalTrailingSlash makes /userdata/1 and /userdata/1/ equivalent.
	// When false only the canonical form with a trailing slash matches.
	OptionalTrailingSlash bool
}

// Deps are the collaborators the router mounts.  Only UserData is required.
type Deps struct {
	UserData    *handler.UserDataHandler
	Metrics     *metrics.Metrics
	Logger      *logrus.Entry
	RateLimiter echo.MiddlewareFunc // applied to the /userdata group when non-nil
	DB          handler.Pinger      // pinged by /healthz when non-nil
}

// New builds the Echo instance serving the API.
func New(d Deps, opts Options) *echo.Echo {
	log := d.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()
	e.HTTPErrorHandler = handler.ErrorHandler(log)

	if opts.OptionalTrailingSlash {
		e.Pre(echomw.AddTrailingSlashWithConfig(echomw.TrailingSlashConfig{Skipper: outsideUserData}))
		e.Pre(syncRawPathSlash)
	}
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.Recover())

	RegisterRoutes(e, d)
	return e
}

// outsideUserData reports whether the request targets anything other than
// /userdata or a path below it.
func outsideUserData(c echo.Context) bool {
	p := c.Request().URL.Path
	return p != "/userdata" && !strings.HasPrefix(p, "/userdata/")
}

// syncRawPathSlash mirrors a trailing slash added to URL.Path onto
// URL.RawPath, which echo routes on when it is set.
func syncRawPathSlash(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		u := c.Request().URL
		if u.RawPath != "" && strings.HasSuffix(u.Path, "/") && !strings.HasSuffix(u.RawPath, "/") {
			u.RawPath += "/"
		}
		return next(c)
	}
}

// RegisterRoutes mounts the health check, metrics and the userdata resource.
func RegisterRoutes(e *echo.Echo, d Deps) {
	// Health check for load balancers; also pings the database when one is configured.
	e.GET("/healthz", handler.Health(d.DB))
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	var mws []echo.MiddlewareFunc
	if d.RateLimiter != nil {
		mws = append(mws, d.RateLimiter)
	}
	g := e.Group("/userdata", mws...)
	h := d.UserData
	g.GET("/", h.List)
	g.POST("/", h.Create)
	g.GET("/:id/", h.Retrieve)
	g.PUT("/:id/", h.Update)
	g.PATCH("/:id/", h.Update)
	g.DELETE("/:id/", h.Delete)
	// Registration lookup returns the full record including contact details.
	g.GET("/registration/:registrationid/", h.GetByRegistration)
}
