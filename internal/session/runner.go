package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/courtside-labs/hoopstream/internal/agent"
	"github.com/courtside-labs/hoopstream/internal/stream"
)

// Snapshot is an immutable view of the session for rendering. Steps is
// a copy; mutating it does not affect the session.
type Snapshot struct {
	Status Status
	Steps  []Step
	Result *stream.Prediction
	Err    string
}

// Runner drives at most one prediction session at a time: it opens the
// transport, pumps chunks through the parser into the session, and
// exposes snapshot reads plus coalesced change notifications.
type Runner struct {
	client *agent.Client

	mu     sync.Mutex
	sess   *Session
	cancel context.CancelFunc
	done   chan struct{}

	updates chan struct{}
}

func NewRunner(client *agent.Client) *Runner {
	return &Runner{
		client:  client,
		sess:    New(),
		updates: make(chan struct{}, 1),
	}
}

// Start begins a new prediction session. Any in-flight session is
// cancelled and fully drained before the new network call is issued,
// so two sessions never interleave writes into the step log.
func (r *Runner) Start(ctx context.Context, req agent.PredictionRequest) {
	r.stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	r.mu.Lock()
	r.cancel = cancel
	r.done = done
	r.sess.Reset()
	r.sess.Start()
	r.mu.Unlock()
	r.notify()

	go r.run(runCtx, req, done)
}

// Reset cancels any in-flight session and returns to idle with an
// empty step log. An explicit reset is not a failure; the aborted
// stream produces no error state.
func (r *Runner) Reset() {
	r.stop()

	r.mu.Lock()
	r.sess.Reset()
	r.mu.Unlock()
	r.notify()
}

// Snapshot returns a copy of the current session state.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	steps := make([]Step, len(r.sess.Steps()))
	copy(steps, r.sess.Steps())
	for i := range steps {
		if len(steps[i].Detail) > 0 {
			steps[i].Detail = append(stream.Detail(nil), steps[i].Detail...)
		}
	}

	var result *stream.Prediction
	if res := r.sess.Result(); res != nil {
		cp := *res
		result = &cp
	}

	return Snapshot{
		Status: r.sess.Status(),
		Steps:  steps,
		Result: result,
		Err:    r.sess.ErrMessage(),
	}
}

// Updates signals after state changes. Signals are coalesced; callers
// re-read Snapshot on each receive.
func (r *Runner) Updates() <-chan struct{} {
	return r.updates
}

func (r *Runner) stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (r *Runner) run(ctx context.Context, req agent.PredictionRequest, done chan struct{}) {
	defer close(done)

	body, err := r.client.Open(ctx, req)
	if err != nil {
		r.finishWithError(err)
		return
	}
	defer body.Close()

	parser := stream.NewParser()
	buf := make([]byte, 32*1024)

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			frames := parser.ParseChunk(buf[:n])

			r.mu.Lock()
			for _, f := range frames {
				r.sess.Apply(f)
			}
			terminal := r.sess.Status() == StatusComplete || r.sess.Status() == StatusError
			r.mu.Unlock()

			if len(frames) > 0 {
				r.notify()
			}
			if terminal {
				return
			}
		}

		if readErr == io.EOF {
			r.mu.Lock()
			r.sess.FinishStream()
			r.mu.Unlock()
			r.notify()
			return
		}
		if readErr != nil {
			r.finishWithError(readErr)
			return
		}
	}
}

func (r *Runner) finishWithError(err error) {
	// The session's own abort is silent: reset is not a failure.
	if errors.Is(err, context.Canceled) {
		return
	}

	r.mu.Lock()
	r.sess.Fail(userMessage(err))
	r.mu.Unlock()
	r.notify()
}

func (r *Runner) notify() {
	select {
	case r.updates <- struct{}{}:
	default:
	}
}

// userMessage maps transport failures to the message shown to the
// consumer. Gateway 504s carry the same timeout wording as a local
// deadline so the two present identically.
func userMessage(err error) string {
	switch {
	case errors.Is(err, agent.ErrTimeout):
		return "prediction timed out waiting for the agent"
	case errors.Is(err, agent.ErrNoBody):
		return "prediction agent returned an empty response"
	case errors.Is(err, agent.ErrConnectionFailed):
		return "could not reach the prediction agent"
	}

	var up *agent.UpstreamError
	if errors.As(err, &up) {
		if up.Status == http.StatusGatewayTimeout {
			return "prediction timed out waiting for the agent"
		}
		return up.Detail
	}
	return err.Error()
}
