package answercache

import (
	"github.com/kart-io/answercache/pkg/app"
)

const (
	appName        = "answercache"
	appDescription = `Answer Cache Service

Response caching and answer quality estimation for conversational services.

This server provides:
  - Two-tier exact response caching with volatility-based TTLs
  - Embedding-based near-duplicate matching with strict safety gates
  - Learned confidence estimation over generated answers`
)

// NewApp creates a new application instance.
func NewApp() *app.App {
	opts := NewOptions()

	return app.NewApp(
		app.WithName(appName),
		app.WithShortDescription("Answer cache and confidence estimation service"),
		app.WithDescription(appDescription),
		app.WithOptions(opts),
		app.WithRunFunc(func() error {
			return Run(opts)
		}),
	)
}
