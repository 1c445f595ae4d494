package domain

import "time"

type Countdown struct {
	Days    int  `json:"days"`
	Hours   int  `json:"hours"`
	Minutes int  `json:"minutes"`
	Seconds int  `json:"seconds"`
	Ended   bool `json:"ended"`
}

// CountdownUntil breaks the time remaining until end into display units.
func CountdownUntil(end, now time.Time) Countdown {
	remaining := end.Sub(now)
	if remaining <= 0 {
		return Countdown{Ended: true}
	}
	return Countdown{
		Days:    int(remaining / (24 * time.Hour)),
		Hours:   int(remaining % (24 * time.Hour) / time.Hour),
		Minutes: int(remaining % time.Hour / time.Minute),
		Seconds: int(remaining % time.Minute / time.Second),
	}
}
