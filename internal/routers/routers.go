// Package routers
package routers

import (
	"database/sql"

	"perfeval-api/internal/adapters"
	"perfeval-api/internal/media"
	"perfeval-api/internal/routes/invoke"
	"perfeval-api/internal/usage"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type InvokeRouter struct {
	im *invoke.InvokeManager
}

// RegisterInvokeRoutes wires the fan-out inference surface. The returned
// shutdown func flushes buffered usage stats.
func RegisterInvokeRoutes(e *echo.Group, registry *adapters.Registry, statsDB *sql.DB, log *zap.SugaredLogger, debug bool) (func(), error) {
	collector := usage.NewCollector(log, statsDB)
	normalizer := media.NewNormalizer(log, nil)
	manager := invoke.NewInvokeManager(registry, normalizer, collector, log, debug)

	router := InvokeRouter{im: manager}

	api := e.Group("/api")
	api.POST("/invoke", router.im.InvokeRequest)
	api.GET("/models", router.im.ListModels)

	return manager.ShutDown, nil
}
