package stream

import (
	"context"

	"github.com/rs/zerolog"

	"live-leaderboard/internal/cache"
	"live-leaderboard/internal/constants"
	"live-leaderboard/internal/domain"
	"live-leaderboard/internal/ws"
)

// Stats owns the tournament aggregate stats query. Pushes never carry stats
// data; a tournament_update only marks the query stale so the next read
// refetches.
type Stats struct {
	store        *cache.Store
	api          Fetcher
	tournamentID int
	logger       zerolog.Logger
}

func NewStats(store *cache.Store, api Fetcher, tournamentID int, logger zerolog.Logger) *Stats {
	return &Stats{store: store, api: api, tournamentID: tournamentID, logger: logger}
}

func (s *Stats) Key() cache.Key {
	return cache.Key{Kind: KindStats, TournamentID: s.tournamentID}
}

func (s *Stats) Active() bool { return s.tournamentID > 0 }

func (s *Stats) Snapshot(ctx context.Context) (*domain.TournamentStats, error) {
	if !s.Active() {
		return nil, nil
	}
	v, err := s.store.Get(ctx, s.Key(), constants.StatsTTL, func(ctx context.Context) (any, error) {
		return s.api.Stats(ctx, s.tournamentID)
	})
	if err != nil {
		return nil, err
	}
	stats, _ := v.(*domain.TournamentStats)
	return stats, nil
}

// Apply invalidates the stats slot for the tournament the message names,
// falling back to this instance's tournament when the message omits one.
func (s *Stats) Apply(msg ws.Message) {
	tu, ok := msg.(*ws.TournamentUpdate)
	if !ok {
		return
	}
	id := tu.TournamentID
	if id == 0 {
		id = s.tournamentID
	}
	if id <= 0 {
		return
	}
	s.store.Invalidate(cache.Key{Kind: KindStats, TournamentID: id})
	s.logger.Debug().Int("tournament", id).Msg("stats invalidated")
}
