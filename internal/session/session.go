// Package session folds parsed prediction frames into the client-visible
// state machine: idle -> streaming -> complete | error, with an ordered,
// append-only log of the agent's reasoning steps.
package session

import (
	"github.com/courtside-labs/hoopstream/internal/stream"
	"github.com/rs/zerolog/log"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusStreaming Status = "streaming"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

// Step is one entry in the session's reasoning log. Steps are appended
// in frame-arrival order and never mutated afterwards. EventType and
// RawBytes come from the frame that produced the step so analytics can
// store the wire-level view alongside the decoded one.
type Step struct {
	Step      int
	Phase     string
	Title     string
	Detail    stream.Detail
	EventType string
	RawBytes  int
}

// Session is the reducer state for one prediction stream. It is owned
// by a single goroutine; consumers read copies via Snapshot on the
// Runner. Methods are not safe for concurrent use.
type Session struct {
	status Status
	steps  []Step
	result *stream.Prediction
	errMsg string
}

func New() *Session {
	return &Session{status: StatusIdle}
}

func (s *Session) Status() Status { return s.status }

// Start moves the session into streaming. Steps and result from any
// earlier run must already have been cleared by Reset.
func (s *Session) Start() {
	s.status = StatusStreaming
}

// Reset returns the session to idle and discards all accumulated state.
func (s *Session) Reset() {
	s.status = StatusIdle
	s.steps = nil
	s.result = nil
	s.errMsg = ""
}

// Apply folds one frame into the session. Frames applied while idle or
// in a terminal state are ignored; this guards against late delivery
// after cancellation or completion.
func (s *Session) Apply(f stream.Frame) {
	if s.status != StatusStreaming {
		if s.status == StatusComplete && f.EventType == stream.EventDone {
			return // benign end-of-stream marker
		}
		log.Debug().
			Str("event_type", f.EventType).
			Str("status", string(s.status)).
			Msg("frame ignored outside streaming state")
		return
	}

	ev, err := stream.DecodeFrame(f)
	if err != nil {
		// Leniency policy: a bad frame is dropped, the session lives on.
		log.Debug().Err(err).Int("frame", f.Index).Msg("skipping frame")
		return
	}

	switch ev := ev.(type) {
	case stream.StepEvent:
		s.steps = append(s.steps, Step{
			Step:      ev.Step,
			Phase:     ev.Phase,
			Title:     ev.Title,
			Detail:    ev.Detail,
			EventType: f.EventType,
			RawBytes:  f.RawBytes,
		})

	case stream.ResultEvent:
		s.steps = append(s.steps, Step{
			Step:      ev.Step,
			Phase:     stream.PhaseComplete,
			Title:     ev.Title,
			EventType: f.EventType,
			RawBytes:  f.RawBytes,
		})
		prediction := ev.Prediction
		s.result = &prediction
		s.status = StatusComplete

	case stream.ErrorEvent:
		s.errMsg = ev.Message
		s.status = StatusError

	case stream.DoneEvent:
		// Stream-end marker; status is driven by result/error frames.
	}
}

// Fail records a transport-level failure. No step is appended.
func (s *Session) Fail(msg string) {
	if s.status != StatusStreaming {
		return
	}
	s.errMsg = msg
	s.status = StatusError
}

// FinishStream is called when the byte stream ends. A stream that
// closes without ever delivering a result or error frame is reported
// as a failure rather than left streaming forever.
func (s *Session) FinishStream() {
	if s.status != StatusStreaming {
		return
	}
	s.errMsg = "prediction stream ended before a result was delivered"
	s.status = StatusError
}

// Steps returns the live step slice. Callers must not retain it across
// further Apply calls; Runner.Snapshot copies it for consumers.
func (s *Session) Steps() []Step { return s.steps }

func (s *Session) Result() *stream.Prediction { return s.result }

func (s *Session) ErrMessage() string { return s.errMsg }
