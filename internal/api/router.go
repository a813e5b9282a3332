package api

import (
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/datallboy/rangefetch/internal/api/controllers"
	"github.com/datallboy/rangefetch/internal/app"
)

// NewRouter builds the echo instance used by the serve command.
func NewRouter(app *app.Context) *echo.Echo {
	e := echo.New()
	RegisterRoutes(e, app)
	return e
}

func RegisterRoutes(e *echo.Echo, app *app.Context) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	originCtrl := &controllers.OriginController{Path: app.Config.Serve.OriginFile}
	runsCtrl := &controllers.RunsController{App: app}

	// Range-capable origin for the downloader
	e.GET("/", originCtrl.Serve)

	// Run history and queue
	e.GET("/api/runs", runsCtrl.List)
	e.POST("/api/runs", runsCtrl.Submit)
	e.GET("/api/runs/:id", runsCtrl.Get)
	e.DELETE("/api/runs/:id", runsCtrl.Cancel)
}
