package api

import (
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/kvantos/patchbay/internal/api/controllers"
	"github.com/kvantos/patchbay/internal/app"
)

func RegisterRoutes(e *echo.Echo, app *app.Context) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	// The shell talks to the daemon cross-origin when embedded in a webview.
	e.Use(middleware.CORS("*"))

	patcher := &controllers.PatcherController{App: app}

	e.GET("/health", patcher.Health)
	e.GET("/config", patcher.GetConfig)
	e.POST("/config", patcher.SaveConfig)
	e.POST("/update", patcher.StartUpdate)
	e.GET("/status", patcher.Status)
	e.GET("/history", patcher.History)
}
