package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout means the wall-clock bound elapsed before the agent
	// responded or finished streaming.
	ErrTimeout = errors.New("agent request timed out")

	// ErrNoBody means the agent replied with a success status but no
	// response body to stream from.
	ErrNoBody = errors.New("agent response has no body")

	// ErrConnectionFailed covers network-level failures: DNS, refused,
	// reset. Distinguished from ErrTimeout by cause.
	ErrConnectionFailed = errors.New("agent connection failed")
)

// UpstreamError is a non-success HTTP reply from the agent. Detail is
// taken from the agent's JSON error body when one is present.
type UpstreamError struct {
	Status int
	Detail string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("agent returned status %d: %s", e.Status, e.Detail)
}
