package domain

import (
	"fmt"
	"time"
)

type TournamentStatus string

const (
	StatusUpcoming TournamentStatus = "upcoming"
	StatusOngoing  TournamentStatus = "ongoing"
	StatusFinished TournamentStatus = "finished"
)

func (s TournamentStatus) Valid() bool {
	switch s {
	case StatusUpcoming, StatusOngoing, StatusFinished:
		return true
	}
	return false
}

// Tournament is a read-only cached copy of server state; the client never
// creates or mutates one.
type Tournament struct {
	ID             int                `json:"id"`
	Name           string             `json:"name"`
	Description    string             `json:"description,omitempty"`
	Image          string             `json:"image,omitempty"`
	Status         TournamentStatus   `json:"status"`
	StartDate      time.Time          `json:"startDate"`
	EndDate        time.Time          `json:"endDate"`
	Prizes         map[string]float64 `json:"prizes"`
	TotalPrizePool float64            `json:"totalPrizePool"`
}

func (t *Tournament) Validate() error {
	if t.ID <= 0 {
		return fmt.Errorf("tournament id must be positive, got %d", t.ID)
	}
	if t.Name == "" {
		return fmt.Errorf("tournament %d has no name", t.ID)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("tournament %d has unknown status %q", t.ID, t.Status)
	}
	return nil
}

type LeaderboardEntry struct {
	Rank        int       `json:"rank"`
	PlayerID    int       `json:"playerId"`
	Username    string    `json:"username"`
	Avatar      string    `json:"avatar,omitempty"`
	TotalBets   float64   `json:"totalBets"`
	BetsCount   int       `json:"betsCount,omitempty"`
	Prize       float64   `json:"prize,omitempty"`
	LastBetTime time.Time `json:"lastBetTime,omitzero"`
}

func (e *LeaderboardEntry) Validate() error {
	if e.Rank <= 0 {
		return fmt.Errorf("entry rank must be positive, got %d", e.Rank)
	}
	if e.PlayerID <= 0 {
		return fmt.Errorf("entry playerId must be positive, got %d", e.PlayerID)
	}
	if e.Username == "" {
		return fmt.Errorf("entry for player %d has no username", e.PlayerID)
	}
	return nil
}

// Bet is immutable once observed; the feed only ever prepends new ones.
type Bet struct {
	ID        int       `json:"id"`
	PlayerID  int       `json:"playerId"`
	Username  string    `json:"playerUsername"`
	Avatar    string    `json:"playerAvatar,omitempty"`
	MatchID   int       `json:"matchId,omitempty"`
	Amount    float64   `json:"amount"`
	BetType   string    `json:"betType"`
	Selection string    `json:"selection,omitempty"`
	Status    string    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (b *Bet) Validate() error {
	if b.ID <= 0 {
		return fmt.Errorf("bet id must be positive, got %d", b.ID)
	}
	if b.PlayerID <= 0 {
		return fmt.Errorf("bet %d playerId must be positive, got %d", b.ID, b.PlayerID)
	}
	if b.Amount < 0 {
		return fmt.Errorf("bet %d has negative amount", b.ID)
	}
	return nil
}

type TournamentStats struct {
	TotalBets     int            `json:"totalBets"`
	TotalVolume   float64        `json:"totalVolume"`
	ActivePlayers int            `json:"activePlayers"`
	AverageBet    float64        `json:"averageBet"`
	TopSports     map[string]int `json:"topSports,omitempty"`
}

func (s *TournamentStats) Validate() error {
	if s.TotalBets < 0 || s.ActivePlayers < 0 {
		return fmt.Errorf("stats counters must be non-negative")
	}
	return nil
}

type Player struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

func (p *Player) Validate() error {
	if p.ID <= 0 {
		return fmt.Errorf("player id must be positive, got %d", p.ID)
	}
	if p.Username == "" {
		return fmt.Errorf("player %d has no username", p.ID)
	}
	return nil
}
