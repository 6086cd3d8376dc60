package realtime

import "go.uber.org/fx"

// Module provides realtime transport dependencies.
var Module = fx.Module("realtime",
	fx.Provide(
		NewOpenAIProvider,
	),
)
