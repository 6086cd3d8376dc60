package session

import (
	"go.uber.org/fx"

	"github.com/calyptra/voicepipe/internal/config"
	"github.com/calyptra/voicepipe/pkg/pricing"
)

// Module provides session orchestration dependencies.
var Module = fx.Module("session",
	fx.Provide(
		NewOrchestrator,
		NewPricingServiceProvider,
	),
)

// NewPricingServiceProvider creates the cost estimator, optionally backed by
// a rates file from config.
func NewPricingServiceProvider(cfg *config.Config) pricing.Service {
	return pricing.NewService(cfg.Realtime.PricingFile)
}
