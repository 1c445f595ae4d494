package ws

import (
	"encoding/json"
	"time"

	"live-leaderboard/internal/domain"
)

// Message is the closed set of push payloads the client acts on. Anything
// the server sends outside this set is dropped by Decode.
type Message interface{ isMessage() }

type BetPlaced struct {
	TournamentID int // 0 when the server omits it
	Bet          BetPayload
	Timestamp    time.Time
}

type BetPayload struct {
	ID        int
	PlayerID  int
	Username  string
	Avatar    string
	MatchID   int
	Amount    float64
	BetType   string
	Selection string
	Status    string
}

type LeaderboardUpdate struct {
	TournamentID int
	Leaderboard  []EntryPatch
	Timestamp    time.Time
}

// EntryPatch is a possibly-partial leaderboard entry. Optional numeric
// fields are pointers so the merge can tell "omitted" from zero.
type EntryPatch struct {
	Rank        int
	PlayerID    int
	Username    string
	Avatar      string
	TotalBets   float64
	BetsCount   *int
	Prize       *float64
	LastBetTime time.Time
}

// TournamentUpdate signals that tournament-level aggregate stats are stale.
// It carries no data of its own.
type TournamentUpdate struct {
	TournamentID int // 0 when the server omits it
	Note         string
	Timestamp    time.Time
}

func (*BetPlaced) isMessage()         {}
func (*LeaderboardUpdate) isMessage() {}
func (*TournamentUpdate) isMessage()  {}

// Entry materializes the patch as a full entry, for players with no prior
// cached counterpart.
func (p *EntryPatch) Entry() domain.LeaderboardEntry {
	e := domain.LeaderboardEntry{
		Rank:        p.Rank,
		PlayerID:    p.PlayerID,
		Username:    p.Username,
		Avatar:      p.Avatar,
		TotalBets:   p.TotalBets,
		LastBetTime: p.LastBetTime,
	}
	if p.BetsCount != nil {
		e.BetsCount = *p.BetsCount
	}
	if p.Prize != nil {
		e.Prize = *p.Prize
	}
	return e
}

// ApplyTo overlays the patch onto a previous entry. Incoming fields win
// field-by-field; fields the push omitted keep their previous value.
func (p *EntryPatch) ApplyTo(prev domain.LeaderboardEntry) domain.LeaderboardEntry {
	next := prev
	next.Rank = p.Rank
	next.TotalBets = p.TotalBets
	if p.Username != "" {
		next.Username = p.Username
	}
	if p.Avatar != "" {
		next.Avatar = p.Avatar
	}
	if p.BetsCount != nil {
		next.BetsCount = *p.BetsCount
	}
	if p.Prize != nil {
		next.Prize = *p.Prize
	}
	if !p.LastBetTime.IsZero() {
		next.LastBetTime = p.LastBetTime
	}
	return next
}

type envelope struct {
	Type  string `json:"type"`
	Event string `json:"event"`
}

type betPlacedWire struct {
	TournamentID int      `json:"tournamentId"`
	Bet          *betWire `json:"bet"`
	Timestamp    wireTime `json:"timestamp"`
}

type betWire struct {
	ID        int      `json:"id"`
	PlayerID  int      `json:"playerId"`
	Username  string   `json:"playerUsername"`
	Avatar    string   `json:"playerAvatar"`
	MatchID   int      `json:"matchId"`
	Amount    *float64 `json:"amount"`
	BetType   string   `json:"betType"`
	Selection string   `json:"selection"`
	Status    string   `json:"status"`
}

type leaderboardUpdateWire struct {
	TournamentID int         `json:"tournamentId"`
	Leaderboard  []entryWire `json:"leaderboard"`
	Timestamp    wireTime    `json:"timestamp"`
}

type entryWire struct {
	Rank        int      `json:"rank"`
	PlayerID    int      `json:"playerId"`
	Username    string   `json:"username"`
	Avatar      string   `json:"avatar"`
	TotalBets   *float64 `json:"totalBets"`
	BetsCount   *int     `json:"betsCount"`
	Prize       *float64 `json:"prize"`
	LastBetTime wireTime `json:"lastBetTime"`
}

type tournamentUpdateWire struct {
	TournamentID int      `json:"tournamentId"`
	Message      string   `json:"message"`
	Timestamp    wireTime `json:"timestamp"`
}

// wireTime tolerates absent or malformed timestamps instead of failing the
// whole message; required-ness is enforced per kind after unmarshal.
type wireTime struct{ time.Time }

func (t *wireTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t.Time = parsed
	return nil
}

// Decode parses one raw JSON object into a typed message. It returns nil for
// anything unrecognized or structurally invalid: unknown kinds, heartbeats,
// missing discriminants, shape mismatches. It never panics and never errors.
func Decode(raw []byte) Message {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	kind := env.Type
	if kind == "" {
		kind = env.Event
	}

	switch kind {
	case "bet_placed":
		var w betPlacedWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil
		}
		return decodeBetPlaced(&w)
	case "leaderboard_update":
		var w leaderboardUpdateWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil
		}
		return decodeLeaderboardUpdate(&w)
	case "tournament_update":
		var w tournamentUpdateWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil
		}
		return &TournamentUpdate{
			TournamentID: w.TournamentID,
			Note:         w.Message,
			Timestamp:    w.Timestamp.Time,
		}
	}
	return nil
}

func decodeBetPlaced(w *betPlacedWire) Message {
	b := w.Bet
	if b == nil || b.ID <= 0 || b.PlayerID <= 0 || b.Username == "" || b.Amount == nil || w.Timestamp.IsZero() {
		return nil
	}
	return &BetPlaced{
		TournamentID: w.TournamentID,
		Bet: BetPayload{
			ID:        b.ID,
			PlayerID:  b.PlayerID,
			Username:  b.Username,
			Avatar:    b.Avatar,
			MatchID:   b.MatchID,
			Amount:    *b.Amount,
			BetType:   b.BetType,
			Selection: b.Selection,
			Status:    b.Status,
		},
		Timestamp: w.Timestamp.Time,
	}
}

func decodeLeaderboardUpdate(w *leaderboardUpdateWire) Message {
	if w.TournamentID <= 0 || w.Leaderboard == nil {
		return nil
	}
	patches := make([]EntryPatch, 0, len(w.Leaderboard))
	for i := range w.Leaderboard {
		e := &w.Leaderboard[i]
		if e.Rank <= 0 || e.PlayerID <= 0 || e.TotalBets == nil {
			return nil
		}
		patches = append(patches, EntryPatch{
			Rank:        e.Rank,
			PlayerID:    e.PlayerID,
			Username:    e.Username,
			Avatar:      e.Avatar,
			TotalBets:   *e.TotalBets,
			BetsCount:   e.BetsCount,
			Prize:       e.Prize,
			LastBetTime: e.LastBetTime.Time,
		})
	}
	return &LeaderboardUpdate{
		TournamentID: w.TournamentID,
		Leaderboard:  patches,
		Timestamp:    w.Timestamp.Time,
	}
}
