// Package client talks to the SchoolQuest API on behalf of the terminal
// client.
//
// PERSISTENCE POLICY:
// Every call returns an explicit result or error. A request that fails at
// the transport level or with a 5xx is retried once after a short delay;
// 4xx responses are final. Callers decide how to show the error (the
// terminal UI shows a non-blocking toast).
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/schoolquest/internal/leaderboard"
	"github.com/sakif/schoolquest/internal/model"
	"github.com/sakif/schoolquest/internal/runner"
	"github.com/sakif/schoolquest/internal/service"
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultRetryDelay = 500 * time.Millisecond
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// Temporary reports whether retrying could help.
func (e *APIError) Temporary() bool {
	return e.Status >= http.StatusInternalServerError
}

// ErrNoToken is returned by calls that need a user when no token is set.
var ErrNoToken = errors.New("client: no token; sign in on the website and set QUEST_TOKEN")

// Client is safe for concurrent use.
type Client struct {
	base       string
	token      string
	http       *http.Client
	retryDelay time.Duration
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option  { return func(c *Client) { c.http = h } }
func WithRetryDelay(d time.Duration) Option { return func(c *Client) { c.retryDelay = d } }
func WithLogger(l *slog.Logger) Option      { return func(c *Client) { c.logger = l } }

// New creates a client for the server at baseURL. token may be empty for
// the public endpoints.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		base:       strings.TrimRight(baseURL, "/"),
		token:      token,
		http:       &http.Client{Timeout: DefaultTimeout},
		retryDelay: DefaultRetryDelay,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasToken reports whether authenticated calls can be made.
func (c *Client) HasToken() bool { return c.token != "" }

func (c *Client) Me(ctx context.Context) (*model.Session, error) {
	var s model.Session
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &s, true); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) Heartbeat(ctx context.Context) (*model.Ack, error) {
	var ack model.Ack
	if err := c.do(ctx, http.MethodPost, "/api/progress/heartbeat", nil, &ack, true); err != nil {
		return nil, err
	}
	return &ack, nil
}

// SubmitRun sends a finished runner session for verification. The server
// replays it and rejects it if claimed differs from the replayed score.
func (c *Client) SubmitRun(ctx context.Context, run runner.Run, claimed int) (*service.RunnerVerdict, error) {
	body := struct {
		runner.Run
		ClaimedScore int `json:"claimedScore"`
	}{run, claimed}

	var v service.RunnerVerdict
	if err := c.do(ctx, http.MethodPost, "/api/games/runner/replay", body, &v, true); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) Chapters(ctx context.Context) ([]model.Chapter, error) {
	var out []model.Chapter
	if err := c.do(ctx, http.MethodGet, "/api/chapters", nil, &out, false); err != nil {
		return nil, err
	}
	return out, nil
}

// Scenarios lists a chapter's scenarios; chapter 0 lists all of them.
func (c *Client) Scenarios(ctx context.Context, chapter int) ([]model.Scenario, error) {
	path := "/api/scenarios"
	if chapter > 0 {
		path += "?chapter=" + strconv.Itoa(chapter)
	}
	var out []model.Scenario
	if err := c.do(ctx, http.MethodGet, path, nil, &out, false); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Scenario(ctx context.Context, id string) (*model.Scenario, error) {
	var sc model.Scenario
	if err := c.do(ctx, http.MethodGet, "/api/scenarios/"+url.PathEscape(id), nil, &sc, false); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (c *Client) SubmitChoice(ctx context.Context, scenarioID, choiceID string) (*service.ChoiceResult, error) {
	body := map[string]string{"choiceId": choiceID}
	var res service.ChoiceResult
	if err := c.do(ctx, http.MethodPost, "/api/missions/"+url.PathEscape(scenarioID)+"/choice", body, &res, true); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Leaderboard(ctx context.Context, limit int) ([]leaderboard.Entry, error) {
	path := "/api/leaderboard"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []leaderboard.Entry
	if err := c.do(ctx, http.MethodGet, path, nil, &out, false); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Summary(ctx context.Context) (*model.Summary, error) {
	var s model.Summary
	if err := c.do(ctx, http.MethodGet, "/api/progress/summary", nil, &s, true); err != nil {
		return nil, err
	}
	return &s, nil
}

// do sends the request, retrying once on a transport error or 5xx.
func (c *Client) do(ctx context.Context, method, path string, in, out any, authed bool) error {
	if authed && c.token == "" {
		return ErrNoToken
	}

	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("client: encoding request: %w", err)
		}
	}

	err := c.attempt(ctx, method, path, payload, out)
	if !retryable(err) {
		return err
	}
	c.logger.Debug("retrying request",
		slog.String("method", method),
		slog.String("path", path),
		slog.String("error", err.Error()),
	)

	t := time.NewTimer(c.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	return c.attempt(ctx, method, path, payload, out)
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("client: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&eb) == nil {
			apiErr.Code, apiErr.Message = eb.Error, eb.Message
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decoding %s response: %w", path, err)
	}
	return nil
}

// retryable is true for transport failures and 5xx, but not for a
// cancelled context or an undecodable response.
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
