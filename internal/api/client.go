package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"live-leaderboard/internal/config"
	"live-leaderboard/internal/constants"
	"live-leaderboard/internal/domain"
)

// StatusError is a transport-class failure: the server answered with a
// non-success status. Callers may retry.
type StatusError struct {
	Status int
	Path   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: %d for %s", e.Status, e.Path)
}

// ValidationError means the payload decoded but does not match the expected
// shape. The request fails outright; no partial data is used.
type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload for %s: %v", e.Path, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Client is the typed accessor for the upstream tournament API.
type Client struct {
	baseURL string
	client  *fasthttp.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: cfg.APIBaseURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

func (c *Client) Tournaments(ctx context.Context) ([]domain.Tournament, error) {
	path := "/api/tournaments"
	out, err := doRequest[[]domain.Tournament](ctx, c, path)
	if err != nil {
		return nil, err
	}
	for i := range *out {
		if err := (*out)[i].Validate(); err != nil {
			return nil, &ValidationError{Path: path, Err: err}
		}
	}
	return *out, nil
}

func (c *Client) Leaderboard(ctx context.Context, tournamentID, limit int) ([]domain.LeaderboardEntry, error) {
	path := fmt.Sprintf("/api/leaderboard/%d?limit=%d", tournamentID, limit)
	out, err := doRequest[[]domain.LeaderboardEntry](ctx, c, path)
	if err != nil {
		return nil, err
	}
	for i := range *out {
		if err := (*out)[i].Validate(); err != nil {
			return nil, &ValidationError{Path: path, Err: err}
		}
	}
	return *out, nil
}

func (c *Client) Stats(ctx context.Context, tournamentID int) (*domain.TournamentStats, error) {
	path := fmt.Sprintf("/api/tournaments/%d/stats", tournamentID)
	out, err := doRequest[domain.TournamentStats](ctx, c, path)
	if err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, &ValidationError{Path: path, Err: err}
	}
	return out, nil
}

func (c *Client) Bets(ctx context.Context, tournamentID int) ([]domain.Bet, error) {
	path := fmt.Sprintf("/api/tournaments/%d/bets", tournamentID)
	out, err := doRequest[[]domain.Bet](ctx, c, path)
	if err != nil {
		return nil, err
	}
	for i := range *out {
		if err := (*out)[i].Validate(); err != nil {
			return nil, &ValidationError{Path: path, Err: err}
		}
	}
	return *out, nil
}

func (c *Client) Players(ctx context.Context) ([]domain.Player, error) {
	path := "/api/players"
	out, err := doRequest[[]domain.Player](ctx, c, path)
	if err != nil {
		return nil, err
	}
	for i := range *out {
		if err := (*out)[i].Validate(); err != nil {
			return nil, &ValidationError{Path: path, Err: err}
		}
	}
	return *out, nil
}

func doRequest[T any](ctx context.Context, client *Client, path string) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(client.baseURL + path)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := client.client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode(), Path: path}
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, &ValidationError{Path: path, Err: err}
	}
	return &result, nil
}
