package constants

import "time"

const (
	HeartbeatInterval  = 25 * time.Second
	ReconnectBaseDelay = 1 * time.Second
	ReconnectMaxDelay  = 15 * time.Second
	HandshakeTimeout   = 5 * time.Second
)

const (
	TournamentsTTL = 60 * time.Second
	LeaderboardTTL = 15 * time.Second
	StatsTTL       = 15 * time.Second
	BetFeedTTL     = 5 * time.Second
	PlayersTTL     = 60 * time.Second
)

const (
	BetFeedWindow    = 30
	LeaderboardLimit = 50
	PlayerBetsLimit  = 50
)

const (
	ExternalAPITimeout = 10 * time.Second
	RequestTimeout     = 30 * time.Second
	PollInterval       = 5 * time.Second
)

const (
	SnapshotMaxAge  = 24 * time.Hour
	ShutdownTimeout = 5 * time.Second
)
