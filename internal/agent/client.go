// Package agent is the stream transport adapter for the upstream
// prediction agent. It opens exactly one HTTP connection per call and
// classifies failures into a small typed taxonomy; it performs no
// retries and no field validation.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const streamPath = "/predict/stream"

// DefaultTimeout is the wall-clock bound on a single prediction call,
// covering response headers and the entire body read.
const DefaultTimeout = 120 * time.Second

// PredictionRequest is the JSON body sent to the agent.
type PredictionRequest struct {
	HomeTeam string `json:"home_team"`
	AwayTeam string `json:"away_team"`
	GameDate string `json:"game_date"` // YYYY-MM-DD
}

type Client struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		client: &http.Client{
			// No client timeout — the wall-clock bound is enforced per
			// call via context so it also covers the body read.
			Timeout: 0,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Open issues the POST and returns the response body as a lazily-read,
// non-restartable byte stream. The returned ReadCloser must be closed
// to release the deadline timer and the connection.
//
// Cancelling ctx aborts the in-flight read; the abort surfaces as
// context.Canceled from Read, never as one of the failure types.
func (c *Client) Open(ctx context.Context, req PredictionRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL(c.baseURL), bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, classifyDialError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := readErrorDetail(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, &UpstreamError{Status: resp.StatusCode, Detail: detail}
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		cancel()
		return nil, ErrNoBody
	}

	return &timedBody{ctx: ctx, cancel: cancel, body: resp.Body}, nil
}

// timedBody binds the response body to the per-call deadline so reads
// past the wall-clock bound report ErrTimeout instead of a bare
// context error.
type timedBody struct {
	ctx    context.Context
	cancel context.CancelFunc
	body   io.ReadCloser
}

func (t *timedBody) Read(p []byte) (int, error) {
	n, err := t.body.Read(p)
	if err == nil || err == io.EOF {
		return n, err
	}
	switch t.ctx.Err() {
	case context.DeadlineExceeded:
		return n, ErrTimeout
	case context.Canceled:
		return n, context.Canceled
	}
	return n, err
}

func (t *timedBody) Close() error {
	t.cancel()
	return t.body.Close()
}

func classifyDialError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
}

// readErrorDetail extracts a human-readable message from the agent's
// JSON error body. FastAPI reports {"detail": ...}; a generic message
// is used when no recognizable field is present.
func readErrorDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return "upstream agent error"
	}
	var parsed struct {
		Detail  string `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil {
		switch {
		case parsed.Detail != "":
			return parsed.Detail
		case parsed.Error != "":
			return parsed.Error
		case parsed.Message != "":
			return parsed.Message
		}
	}
	return "upstream agent error"
}

func endpointURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		u = &url.URL{Scheme: "http", Host: "localhost:8000"}
	}
	u.Path = streamPath
	return u.String()
}
