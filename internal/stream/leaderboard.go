package stream

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"live-leaderboard/internal/cache"
	"live-leaderboard/internal/constants"
	"live-leaderboard/internal/domain"
	"live-leaderboard/internal/ws"
)

// Leaderboard owns the "leaderboard for tournament T" query and folds
// leaderboard_update pushes into the cache.
type Leaderboard struct {
	store        *cache.Store
	api          Fetcher
	tournamentID int
	logger       zerolog.Logger
}

func NewLeaderboard(store *cache.Store, api Fetcher, tournamentID int, logger zerolog.Logger) *Leaderboard {
	return &Leaderboard{store: store, api: api, tournamentID: tournamentID, logger: logger}
}

func (l *Leaderboard) Key() cache.Key {
	return cache.Key{Kind: KindLeaderboard, TournamentID: l.tournamentID}
}

func (l *Leaderboard) Active() bool { return l.tournamentID > 0 }

func (l *Leaderboard) Snapshot(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	if !l.Active() {
		return nil, nil
	}
	v, err := l.store.Get(ctx, l.Key(), constants.LeaderboardTTL, func(ctx context.Context) (any, error) {
		return l.api.Leaderboard(ctx, l.tournamentID, constants.LeaderboardLimit)
	})
	if err != nil {
		return nil, err
	}
	entries, _ := v.([]domain.LeaderboardEntry)
	return entries, nil
}

// Apply writes an incoming snapshot to the cache slot named by the message's
// own tournament id, not this instance's. An update for a tournament this
// instance no longer watches still lands in the right slot instead of being
// lost.
func (l *Leaderboard) Apply(msg ws.Message) {
	up, ok := msg.(*ws.LeaderboardUpdate)
	if !ok || up.TournamentID <= 0 {
		return
	}

	patches := make([]ws.EntryPatch, len(up.Leaderboard))
	copy(patches, up.Leaderboard)
	sort.SliceStable(patches, func(i, j int) bool { return patches[i].Rank < patches[j].Rank })

	key := cache.Key{Kind: KindLeaderboard, TournamentID: up.TournamentID}
	l.store.Update(key, constants.LeaderboardTTL, func(prev any, _ bool) any {
		entries, _ := prev.([]domain.LeaderboardEntry)
		return mergeLeaderboard(entries, patches)
	})
	l.logger.Debug().
		Int("tournament", up.TournamentID).
		Int("entries", len(patches)).
		Msg("leaderboard merged")
}

// mergeLeaderboard overlays a rank-sorted snapshot onto the previous one,
// keyed by player id. Incoming fields win field-by-field; fields a partial
// push omits (avatar, username) survive from the previous snapshot. With no
// previous snapshot the incoming one is taken outright.
func mergeLeaderboard(prev []domain.LeaderboardEntry, patches []ws.EntryPatch) []domain.LeaderboardEntry {
	next := make([]domain.LeaderboardEntry, 0, len(patches))
	if len(prev) == 0 {
		for i := range patches {
			next = append(next, patches[i].Entry())
		}
		return next
	}

	byPlayer := make(map[int]domain.LeaderboardEntry, len(prev))
	for _, e := range prev {
		byPlayer[e.PlayerID] = e
	}
	for i := range patches {
		p := &patches[i]
		if base, ok := byPlayer[p.PlayerID]; ok {
			next = append(next, p.ApplyTo(base))
		} else {
			next = append(next, p.Entry())
		}
	}
	return next
}
