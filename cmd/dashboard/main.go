package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"live-leaderboard/internal/config"
	"live-leaderboard/internal/constants"
	"live-leaderboard/internal/dashboard"
	fxmodules "live-leaderboard/internal/fx"
	"live-leaderboard/internal/middleware"
	"live-leaderboard/internal/server"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runDashboard),
	).Run()
}

func runDashboard(
	lc fx.Lifecycle,
	svc *dashboard.Service,
	dashboardServer *server.DashboardServer,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	mux := http.NewServeMux()
	dashboardServer.Routes(mux)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: middleware.RequestID(logger)(c.Handler(mux)),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := svc.Start(ctx); err != nil {
				return err
			}
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := svc.Stop(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("sync service stop failed")
			}
			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing snapshot database")
			}
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}
			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
