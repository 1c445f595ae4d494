package stream

import (
	"context"

	"github.com/rs/zerolog"

	"live-leaderboard/internal/cache"
	"live-leaderboard/internal/constants"
	"live-leaderboard/internal/domain"
	"live-leaderboard/internal/ws"
)

const (
	KindTournaments = "tournaments"
	KindLeaderboard = "leaderboard"
	KindStats       = "stats"
	KindBets        = "bets"
	KindPlayers     = "players"
)

// Fetcher is the slice of the REST accessor the reducers poll through.
type Fetcher interface {
	Bets(ctx context.Context, tournamentID int) ([]domain.Bet, error)
	Leaderboard(ctx context.Context, tournamentID, limit int) ([]domain.LeaderboardEntry, error)
	Stats(ctx context.Context, tournamentID int) (*domain.TournamentStats, error)
}

// BetFeed owns the "bets for tournament T" query and folds bet_placed
// pushes into it.
type BetFeed struct {
	store        *cache.Store
	api          Fetcher
	tournamentID int
	logger       zerolog.Logger
}

func NewBetFeed(store *cache.Store, api Fetcher, tournamentID int, logger zerolog.Logger) *BetFeed {
	return &BetFeed{store: store, api: api, tournamentID: tournamentID, logger: logger}
}

func (f *BetFeed) TournamentID() int { return f.tournamentID }

func (f *BetFeed) Key() cache.Key {
	return cache.Key{Kind: KindBets, TournamentID: f.tournamentID}
}

// Active reports whether the query should poll at all.
func (f *BetFeed) Active() bool { return f.tournamentID > 0 }

// Snapshot returns the cached feed, fetching when stale. Inactive queries
// yield an empty feed without touching the network.
func (f *BetFeed) Snapshot(ctx context.Context) ([]domain.Bet, error) {
	if !f.Active() {
		return nil, nil
	}
	v, err := f.store.Get(ctx, f.Key(), constants.BetFeedTTL, func(ctx context.Context) (any, error) {
		return f.api.Bets(ctx, f.tournamentID)
	})
	if err != nil {
		return nil, err
	}
	bets, _ := v.([]domain.Bet)
	return bets, nil
}

// Apply folds one decoded push message into the feed. Messages tagged with
// another tournament are ignored so cross-tournament pushes never pollute
// this stream.
func (f *BetFeed) Apply(msg ws.Message) {
	bp, ok := msg.(*ws.BetPlaced)
	if !ok || !f.Active() {
		return
	}
	if bp.TournamentID != 0 && bp.TournamentID != f.tournamentID {
		return
	}

	incoming := domain.Bet{
		ID:        bp.Bet.ID,
		PlayerID:  bp.Bet.PlayerID,
		Username:  bp.Bet.Username,
		Avatar:    bp.Bet.Avatar,
		MatchID:   bp.Bet.MatchID,
		Amount:    bp.Bet.Amount,
		BetType:   bp.Bet.BetType,
		Selection: bp.Bet.Selection,
		Status:    bp.Bet.Status,
		Timestamp: bp.Timestamp,
	}

	f.store.Update(f.Key(), constants.BetFeedTTL, func(prev any, _ bool) any {
		bets, _ := prev.([]domain.Bet)
		return mergeBet(bets, incoming)
	})
	f.logger.Debug().Int("bet", incoming.ID).Int("tournament", f.tournamentID).Msg("bet merged")
}

// mergeBet prepends the incoming bet, dropping any earlier copy with the
// same id, then bounds the feed to the most recent entries.
func mergeBet(prev []domain.Bet, incoming domain.Bet) []domain.Bet {
	next := make([]domain.Bet, 0, len(prev)+1)
	next = append(next, incoming)
	for _, b := range prev {
		if b.ID == incoming.ID {
			continue
		}
		next = append(next, b)
	}
	if len(next) > constants.BetFeedWindow {
		next = next[:constants.BetFeedWindow]
	}
	return next
}
