package dashboard

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"live-leaderboard/internal/cache"
	"live-leaderboard/internal/config"
	"live-leaderboard/internal/constants"
	"live-leaderboard/internal/domain"
	"live-leaderboard/internal/store"
	"live-leaderboard/internal/stream"
	"live-leaderboard/internal/ws"
)

// Service owns the sync lifecycle: warm-start from persisted snapshots, the
// push connection, the poll loop, and write-behind persistence of cache
// changes.
type Service struct {
	agg    *Aggregator
	cache  *cache.Store
	snaps  *store.Snapshots
	cfg    *config.Config
	logger zerolog.Logger

	conn *ws.Conn
	done chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	dirty   map[cache.Key]struct{}
	unsub   []func()
	tracked int // tournament id the key subscriptions follow
}

func NewService(agg *Aggregator, cacheStore *cache.Store, snaps *store.Snapshots, cfg *config.Config, logger zerolog.Logger) *Service {
	return &Service{
		agg:    agg,
		cache:  cacheStore,
		snaps:  snaps,
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
		dirty:  make(map[cache.Key]struct{}),
	}
}

// Start seeds the cache from persisted snapshots, opens the push connection,
// and begins the poll/persist loop.
func (s *Service) Start(ctx context.Context) error {
	if err := s.snaps.Prune(ctx, constants.SnapshotMaxAge); err != nil {
		s.logger.Warn().Err(err).Msg("snapshot prune failed")
	}
	s.warmStart(ctx)
	s.watch(tournamentsKey())

	conn, err := ws.Connect(s.cfg.WSURL, s.cfg.WSToken, ws.Handlers{
		OnMessage: s.agg.HandleMessage,
		OnOpen:    func() { s.logger.Info().Msg("live stream connected") },
		OnClose:   func(err error) { s.logger.Info().Err(err).Msg("live stream closed") },
		OnError:   func(err error) { s.logger.Warn().Err(err).Msg("live stream error") },
	}, s.logger, ws.Options{})
	if err != nil {
		return err
	}
	s.conn = conn

	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop closes the connection, stops the loop, and persists what is dirty.
func (s *Service) Stop(ctx context.Context) error {
	close(s.done)
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.wg.Wait()
	s.persistDirty(ctx)

	s.mu.Lock()
	unsubs := s.unsub
	s.unsub = nil
	s.mu.Unlock()
	for _, fn := range unsubs {
		fn()
	}
	return nil
}

func (s *Service) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(constants.PollInterval)
	defer ticker.Stop()

	s.tick()
	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.done:
			return
		}
	}
}

func (s *Service) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout)
	defer cancel()

	if err := s.agg.Refresh(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("refresh failed")
	}
	s.watchTournament(s.agg.TournamentID())
	s.persistDirty(ctx)
}

// watchTournament keeps the subscriptions pointed at the active
// tournament's keys, re-registering when the selection changes.
func (s *Service) watchTournament(id int) {
	s.mu.Lock()
	if s.tracked == id {
		s.mu.Unlock()
		return
	}
	s.tracked = id
	s.mu.Unlock()
	if id <= 0 {
		return
	}
	s.watch(cache.Key{Kind: stream.KindBets, TournamentID: id})
	s.watch(cache.Key{Kind: stream.KindLeaderboard, TournamentID: id})
	s.watch(cache.Key{Kind: stream.KindStats, TournamentID: id})
}

func (s *Service) watch(key cache.Key) {
	unsub := s.cache.Subscribe(key, func(k cache.Key) {
		s.mu.Lock()
		s.dirty[k] = struct{}{}
		s.mu.Unlock()
	})
	s.mu.Lock()
	s.unsub = append(s.unsub, unsub)
	s.mu.Unlock()
}

func (s *Service) persistDirty(ctx context.Context) {
	s.mu.Lock()
	keys := make([]cache.Key, 0, len(s.dirty))
	for k := range s.dirty {
		keys = append(keys, k)
	}
	s.dirty = make(map[cache.Key]struct{})
	s.mu.Unlock()

	for _, key := range keys {
		value, ok := s.cache.Peek(key)
		if !ok {
			continue
		}
		if err := s.snaps.Save(ctx, key.Kind, key.TournamentID, value); err != nil {
			s.logger.Warn().Err(err).Str("key", key.String()).Msg("snapshot save failed")
		}
	}
}

// warmStart seeds the cache from the last persisted snapshots. Seeds keep
// their stored age, so anything older than its freshness window is shown
// immediately but refetched on the first poll.
func (s *Service) warmStart(ctx context.Context) {
	var tournaments []domain.Tournament
	if at, err := s.snaps.Load(ctx, stream.KindTournaments, 0, &tournaments); err == nil {
		s.cache.Seed(tournamentsKey(), tournaments, at, constants.TournamentsTTL)
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn().Err(err).Msg("tournament snapshot load failed")
	}

	t := s.agg.selectTournament(tournaments)
	if t == nil {
		return
	}

	var bets []domain.Bet
	if at, err := s.snaps.Load(ctx, stream.KindBets, t.ID, &bets); err == nil {
		s.cache.Seed(cache.Key{Kind: stream.KindBets, TournamentID: t.ID}, bets, at, constants.BetFeedTTL)
	}
	var entries []domain.LeaderboardEntry
	if at, err := s.snaps.Load(ctx, stream.KindLeaderboard, t.ID, &entries); err == nil {
		s.cache.Seed(cache.Key{Kind: stream.KindLeaderboard, TournamentID: t.ID}, entries, at, constants.LeaderboardTTL)
	}
	var stats domain.TournamentStats
	if at, err := s.snaps.Load(ctx, stream.KindStats, t.ID, &stats); err == nil {
		s.cache.Seed(cache.Key{Kind: stream.KindStats, TournamentID: t.ID}, &stats, at, constants.StatsTTL)
	}
	s.logger.Info().Int("tournament", t.ID).Msg("cache warm-started from snapshots")
}
