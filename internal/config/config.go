package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	APIBaseURL   string
	WSURL        string
	WSToken      string
	TournamentID int
	DBPath       string
	ServerPort   string
	LogLevel     string
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	tournamentID, err := getEnvInt("TOURNAMENT_ID", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIBaseURL:   getEnv("API_BASE_URL", "http://localhost:4000"),
		WSURL:        getEnv("WS_URL", "ws://localhost:4000/ws"),
		WSToken:      getEnv("WS_TOKEN", ""),
		TournamentID: tournamentID,
		DBPath:       getEnv("DB_PATH", "dashboard.db"),
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	if err := validateURL(cfg.APIBaseURL, "API_BASE_URL", "http", "https"); err != nil {
		return nil, err
	}
	if err := validateURL(cfg.WSURL, "WS_URL", "ws", "wss"); err != nil {
		return nil, err
	}

	logger.Info().
		Str("api_base_url", cfg.APIBaseURL).
		Str("ws_url", cfg.WSURL).
		Int("tournament_id", cfg.TournamentID).
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Msg("configuration loaded")

	return cfg, nil
}

func validateURL(raw, name string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host: %q", name, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s has unexpected scheme %q, want one of %v", name, u.Scheme, schemes)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

var Module = fx.Provide(Load)
