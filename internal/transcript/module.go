package transcript

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/calyptra/voicepipe/internal/config"
)

// Module provides transcript aggregation dependencies.
var Module = fx.Module("transcript",
	fx.Provide(
		NewAggregator,
		NewHistoryStoreProvider,
	),
)

// NewHistoryStoreProvider creates a HistoryStore with config-derived size.
func NewHistoryStoreProvider(cfg *config.Config, logger *zap.Logger) (*HistoryStore, error) {
	size := cfg.Transcript.HistorySize
	logger.Info("Creating transcript history store", zap.Int("size", size))

	return NewHistoryStore(size)
}
