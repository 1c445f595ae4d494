package config

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_BASE_URL", "")
	t.Setenv("WS_URL", "")
	t.Setenv("WS_TOKEN", "")
	t.Setenv("TOURNAMENT_ID", "")

	cfg, err := Load(zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4000", cfg.APIBaseURL)
	assert.Equal(t, "ws://localhost:4000/ws", cfg.WSURL)
	assert.Empty(t, cfg.WSToken)
	assert.Zero(t, cfg.TournamentID)
	assert.Equal(t, "dashboard.db", cfg.DBPath)
	assert.Equal(t, "8080", cfg.ServerPort)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.example.com")
	t.Setenv("WS_URL", "wss://api.example.com/ws")
	t.Setenv("WS_TOKEN", "secret")
	t.Setenv("TOURNAMENT_ID", "7")
	t.Setenv("DB_PATH", "/tmp/test.db")

	cfg, err := Load(zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.APIBaseURL)
	assert.Equal(t, "wss://api.example.com/ws", cfg.WSURL)
	assert.Equal(t, "secret", cfg.WSToken)
	assert.Equal(t, 7, cfg.TournamentID)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
}

func TestLoadRejectsBadAPIScheme(t *testing.T) {
	t.Setenv("API_BASE_URL", "ftp://example.com")
	t.Setenv("WS_URL", "")

	_, err := Load(zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_BASE_URL")
}

func TestLoadRejectsHTTPWebSocketURL(t *testing.T) {
	t.Setenv("API_BASE_URL", "")
	t.Setenv("WS_URL", "http://example.com/ws")

	_, err := Load(zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WS_URL")
}

func TestLoadRejectsHostlessURL(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://")
	t.Setenv("WS_URL", "")

	_, err := Load(zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no host")
}

func TestLoadRejectsNonNumericTournamentID(t *testing.T) {
	t.Setenv("API_BASE_URL", "")
	t.Setenv("WS_URL", "")
	t.Setenv("TOURNAMENT_ID", "abc")

	_, err := Load(zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOURNAMENT_ID")
}
