package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"live-leaderboard/internal/cache"
	"live-leaderboard/internal/config"
	"live-leaderboard/internal/constants"
	"live-leaderboard/internal/domain"
	"live-leaderboard/internal/stream"
	"live-leaderboard/internal/ws"
)

// API is the full REST accessor surface the aggregator consumes.
type API interface {
	stream.Fetcher
	Tournaments(ctx context.Context) ([]domain.Tournament, error)
	Players(ctx context.Context) ([]domain.Player, error)
}

var ErrPlayerNotFound = errors.New("player not found")

// View is the joined view-model handed to the presentation layer. Loading
// and Unavailable are distinct: loading means the tournament list is still
// unresolved, unavailable means it resolved to nothing usable.
type View struct {
	Tournament  *domain.Tournament        `json:"tournament"`
	Countdown   *domain.Countdown         `json:"countdown,omitempty"`
	Stats       *domain.TournamentStats   `json:"stats,omitempty"`
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
	Bets        []domain.Bet              `json:"bets"`
	Loading     bool                      `json:"loading"`
	Unavailable bool                      `json:"unavailable"`
	Error       string                    `json:"error,omitempty"`
}

type PlayerProfile struct {
	Player *domain.Player `json:"player"`
	Bets   []domain.Bet   `json:"bets"`
}

// Aggregator composes the active-tournament query with the three stream
// reducers into one coherent view-model.
type Aggregator struct {
	api      API
	store    *cache.Store
	logger   zerolog.Logger
	targetID int // configured tournament; 0 selects the first ongoing one

	mu          sync.Mutex
	bets        *stream.BetFeed
	leaderboard *stream.Leaderboard
	stats       *stream.Stats
	listErr     error // last tournament-list fetch failure
}

func NewAggregator(api API, store *cache.Store, cfg *config.Config, logger zerolog.Logger) *Aggregator {
	a := &Aggregator{
		api:      api,
		store:    store,
		logger:   logger,
		targetID: cfg.TournamentID,
	}
	a.rebuildReducers(0)
	return a
}

func tournamentsKey() cache.Key { return cache.Key{Kind: stream.KindTournaments} }
func playersKey() cache.Key     { return cache.Key{Kind: stream.KindPlayers} }

// TournamentID returns the id the reducers are currently bound to.
func (a *Aggregator) TournamentID() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bets.TournamentID()
}

func (a *Aggregator) rebuildReducers(id int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bets != nil && a.bets.TournamentID() == id {
		return
	}
	a.bets = stream.NewBetFeed(a.store, a.api, id, a.logger)
	a.leaderboard = stream.NewLeaderboard(a.store, a.api, id, a.logger)
	a.stats = stream.NewStats(a.store, a.api, id, a.logger)
}

func (a *Aggregator) reducers() (*stream.BetFeed, *stream.Leaderboard, *stream.Stats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bets, a.leaderboard, a.stats
}

// HandleMessage is the single callback registered with the connection
// manager. Every reducer sees every message and filters by kind itself.
func (a *Aggregator) HandleMessage(msg ws.Message) {
	bets, leaderboard, stats := a.reducers()
	bets.Apply(msg)
	leaderboard.Apply(msg)
	stats.Apply(msg)
}

// ActiveTournament resolves the tournament the dashboard follows: the
// configured target id when set, otherwise the first ongoing tournament,
// otherwise the first listed. Returns nil when none is available.
func (a *Aggregator) ActiveTournament(ctx context.Context) (*domain.Tournament, error) {
	v, err := a.store.Get(ctx, tournamentsKey(), constants.TournamentsTTL, func(ctx context.Context) (any, error) {
		return a.api.Tournaments(ctx)
	})
	a.setListErr(err)
	if err != nil {
		return nil, err
	}
	list, _ := v.([]domain.Tournament)
	return a.selectTournament(list), nil
}

func (a *Aggregator) setListErr(err error) {
	a.mu.Lock()
	a.listErr = err
	a.mu.Unlock()
}

func (a *Aggregator) lastListErr() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listErr
}

func (a *Aggregator) selectTournament(list []domain.Tournament) *domain.Tournament {
	if len(list) == 0 {
		return nil
	}
	if a.targetID > 0 {
		for i := range list {
			if list[i].ID == a.targetID {
				return &list[i]
			}
		}
		return nil
	}
	for i := range list {
		if list[i].Status == domain.StatusOngoing {
			return &list[i]
		}
	}
	return &list[0]
}

// Refresh resolves the active tournament, rebinds the reducers when it
// changed, and polls every active query in parallel, honoring each one's
// freshness window through the cache.
func (a *Aggregator) Refresh(ctx context.Context) error {
	t, err := a.ActiveTournament(ctx)
	if err != nil {
		return err
	}
	if t == nil {
		a.rebuildReducers(0)
		return nil
	}
	a.rebuildReducers(t.ID)

	bets, leaderboard, stats := a.reducers()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { _, err := bets.Snapshot(ctx); return err })
	g.Go(func() error { _, err := leaderboard.Snapshot(ctx); return err })
	g.Go(func() error { _, err := stats.Snapshot(ctx); return err })
	return g.Wait()
}

// Current assembles the view from whatever is cached right now. It never
// blocks and never fetches; Refresh is the polling side.
func (a *Aggregator) Current() *View {
	v, ok := a.store.Peek(tournamentsKey())
	if !ok {
		if err := a.lastListErr(); err != nil {
			return &View{Unavailable: true, Error: err.Error()}
		}
		return &View{Loading: true}
	}
	list, _ := v.([]domain.Tournament)
	t := a.selectTournament(list)
	if t == nil {
		return &View{Unavailable: true}
	}

	view := &View{Tournament: t}
	countdown := domain.CountdownUntil(t.EndDate, time.Now())
	view.Countdown = &countdown

	if v, ok := a.store.Peek(cache.Key{Kind: stream.KindStats, TournamentID: t.ID}); ok {
		view.Stats, _ = v.(*domain.TournamentStats)
	}
	if v, ok := a.store.Peek(cache.Key{Kind: stream.KindLeaderboard, TournamentID: t.ID}); ok {
		view.Leaderboard, _ = v.([]domain.LeaderboardEntry)
	}
	if v, ok := a.store.Peek(cache.Key{Kind: stream.KindBets, TournamentID: t.ID}); ok {
		view.Bets, _ = v.([]domain.Bet)
	}
	return view
}

// Players returns the cached player directory.
func (a *Aggregator) Players(ctx context.Context) ([]domain.Player, error) {
	v, err := a.store.Get(ctx, playersKey(), constants.PlayersTTL, func(ctx context.Context) (any, error) {
		return a.api.Players(ctx)
	})
	if err != nil {
		return nil, err
	}
	players, _ := v.([]domain.Player)
	return players, nil
}

// PlayerProfile joins one player with their recent bets from the feed.
func (a *Aggregator) PlayerProfile(ctx context.Context, playerID int) (*PlayerProfile, error) {
	players, err := a.Players(ctx)
	if err != nil {
		return nil, err
	}
	var player *domain.Player
	for i := range players {
		if players[i].ID == playerID {
			player = &players[i]
			break
		}
	}
	if player == nil {
		return nil, ErrPlayerNotFound
	}

	bets, _, _ := a.reducers()
	feed, err := bets.Snapshot(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Int("player", playerID).Msg("player bets unavailable")
	}
	own := make([]domain.Bet, 0)
	for _, b := range feed {
		if b.PlayerID == playerID {
			own = append(own, b)
		}
		if len(own) == constants.PlayerBetsLimit {
			break
		}
	}
	return &PlayerProfile{Player: player, Bets: own}, nil
}
