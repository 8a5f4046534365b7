package stream

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event types emitted by the prediction agent.
const (
	EventPlan    = "plan"
	EventExecute = "execute"
	EventReplan  = "replan"
	EventResult  = "result"
	EventError   = "error"
	EventDone    = "done"
)

// Phases reported inside step payloads.
const (
	PhasePlanning   = "planning"
	PhaseExecuting  = "executing"
	PhaseReplanning = "replanning"
	PhaseConcluding = "concluding"
	PhaseComplete   = "complete"
)

// ErrUnknownEvent marks a frame whose event type is not part of the
// agent protocol. Callers skip these frames.
var ErrUnknownEvent = errors.New("unknown event type")

// Detail is the step detail field, which the agent emits either as a
// single string or as a list of strings.
type Detail []string

func (d *Detail) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*d = Detail{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*d = Detail(list)
	return nil
}

func (d Detail) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(d))
}

// StepEvent is the payload of plan, execute and replan frames.
type StepEvent struct {
	Step   int    `json:"step"`
	Phase  string `json:"phase"`
	Title  string `json:"title"`
	Detail Detail `json:"detail"`
}

// Prediction is the agent's final verdict.
type Prediction struct {
	Winner           string   `json:"winner"`
	Confidence       float64  `json:"confidence"`
	KeyFactors       []string `json:"key_factors"`
	DetailedAnalysis string   `json:"detailed_analysis"`
}

// ResultEvent is the payload of the terminal result frame.
type ResultEvent struct {
	Step       int        `json:"step"`
	Title      string     `json:"title"`
	Prediction Prediction `json:"prediction"`
}

// ErrorEvent is the payload of an agent-reported failure.
type ErrorEvent struct {
	Message string `json:"message"`
}

// DoneEvent marks the end of the stream. Carries no required fields.
type DoneEvent struct {
	Message string `json:"message"`
}

// DecodeFrame parses a frame's payload into its typed form, validating
// the fields the protocol requires. A failed decode invalidates the
// frame only; callers keep the session alive and move on.
func DecodeFrame(f Frame) (any, error) {
	switch f.EventType {
	case EventPlan, EventExecute, EventReplan:
		var ev StepEvent
		if err := json.Unmarshal([]byte(f.RawData), &ev); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", f.EventType, err)
		}
		if ev.Title == "" {
			return nil, fmt.Errorf("%s frame missing title", f.EventType)
		}
		if ev.Phase == "" {
			return nil, fmt.Errorf("%s frame missing phase", f.EventType)
		}
		return ev, nil

	case EventResult:
		var ev ResultEvent
		if err := json.Unmarshal([]byte(f.RawData), &ev); err != nil {
			return nil, fmt.Errorf("decode result frame: %w", err)
		}
		if ev.Prediction.Winner == "" {
			return nil, errors.New("result frame missing prediction winner")
		}
		return ev, nil

	case EventError:
		var ev ErrorEvent
		if err := json.Unmarshal([]byte(f.RawData), &ev); err != nil {
			return nil, fmt.Errorf("decode error frame: %w", err)
		}
		if ev.Message == "" {
			ev.Message = "prediction agent reported an error"
		}
		return ev, nil

	case EventDone:
		var ev DoneEvent
		if err := json.Unmarshal([]byte(f.RawData), &ev); err != nil {
			return nil, fmt.Errorf("decode done frame: %w", err)
		}
		return ev, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.EventType)
}
