package fx

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"live-leaderboard/internal/api"
	"live-leaderboard/internal/cache"
	"live-leaderboard/internal/config"
	"live-leaderboard/internal/dashboard"
	"live-leaderboard/internal/database"
	"live-leaderboard/internal/logger"
	"live-leaderboard/internal/server"
	"live-leaderboard/internal/store"
)

// NewAggregator wants the accessor interface, fx provides the concrete client.
func provideAggregator(client *api.Client, cacheStore *cache.Store, cfg *config.Config, log zerolog.Logger) *dashboard.Aggregator {
	return dashboard.NewAggregator(client, cacheStore, cfg, log)
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	fx.Provide(cache.New),
	// rest accessor + persistence
	fx.Provide(api.NewClient),
	fx.Provide(store.NewSnapshots),
	// sync core
	fx.Provide(provideAggregator),
	fx.Provide(dashboard.NewService),
	// serving surface
	fx.Provide(server.NewDashboardServer),
)
