// Package invoke includes all routes and functionality for multimodal
// fan-out inference
package invoke

import (
	"perfeval-api/internal/adapters"
	"perfeval-api/internal/dispatch"
	"perfeval-api/internal/media"
	"perfeval-api/internal/usage"

	"go.uber.org/zap"
)

type InvokeManager struct {
	Registry   *adapters.Registry
	Normalizer *media.Normalizer
	Dispatcher *dispatch.Dispatcher
	Usage      *usage.Collector
	Log        *zap.SugaredLogger
	Debug      bool
}

func NewInvokeManager(registry *adapters.Registry, normalizer *media.Normalizer, collector *usage.Collector, log *zap.SugaredLogger, debug bool) *InvokeManager {
	return &InvokeManager{
		Registry:   registry,
		Normalizer: normalizer,
		Dispatcher: dispatch.NewDispatcher(registry, collector, log),
		Usage:      collector,
		Log:        log,
		Debug:      debug,
	}
}

func (im *InvokeManager) ShutDown() {
	if im.Usage != nil {
		im.Usage.Shutdown()
	}
}
