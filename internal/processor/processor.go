// Package processor is the analytics consumer: it reassembles each
// prediction request's SSE byte stream from JetStream, folds it through
// the session state machine, and persists the step log and verdict.
package processor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	nats "github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/courtside-labs/hoopstream/internal/jetstream"
	"github.com/courtside-labs/hoopstream/internal/session"
	"github.com/courtside-labs/hoopstream/internal/storage"
	"github.com/courtside-labs/hoopstream/internal/stream"
)

// staleAfter bounds how long a request's partial state is held when
// its done marker never arrives (gateway crash mid-stream).
const staleAfter = 15 * time.Minute

type requestState struct {
	parser  *stream.Parser
	sess    *session.Session
	started time.Time
}

type Processor struct {
	writer storage.JobQueue

	mu        sync.Mutex
	active    map[string]*requestState
	lastSweep time.Time
}

func New(writer storage.JobQueue) *Processor {
	return &Processor{
		writer:    writer,
		active:    map[string]*requestState{},
		lastSweep: time.Now(),
	}
}

// StartConsumer subscribes to the prediction chunk subjects and blocks
// until ctx is cancelled.
func (p *Processor) StartConsumer(ctx context.Context, js nats.JetStreamContext) error {
	sub, err := js.Subscribe(jetstream.SubjectPrefix+">", p.handleMsg)
	if err != nil {
		return err
	}
	<-ctx.Done()
	sub.Drain()
	return nil
}

func (p *Processor) handleMsg(msg *nats.Msg) {
	requestID, done, ok := jetstream.SplitSubject(msg.Subject)
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if done {
		p.finalizeLocked(requestID, doneTimestamp(msg.Data))
	} else {
		st := p.active[requestID]
		if st == nil {
			st = &requestState{
				parser:  stream.NewParser(),
				sess:    session.New(),
				started: time.Now(),
			}
			st.sess.Start()
			p.active[requestID] = st
		}
		for _, f := range st.parser.ParseChunk(msg.Data) {
			st.sess.Apply(f)
		}
	}

	p.sweepLocked()
}

// finalizeLocked closes out one request's session and enqueues its
// storage jobs. ts must match the gateway's insert timestamp so the
// outcome update lands on the right row.
func (p *Processor) finalizeLocked(requestID string, ts time.Time) {
	st := p.active[requestID]
	if st == nil {
		return
	}
	delete(p.active, requestID)

	id, err := uuid.Parse(requestID)
	if err != nil {
		log.Warn().Str("request_id", requestID).Msg("ignoring stream with malformed request id")
		return
	}

	st.sess.FinishStream()

	steps := st.sess.Steps()
	if len(steps) > 0 {
		p.writer.Enqueue(storage.StepsInsert{RequestID: id, Timestamp: ts, Steps: steps})
	}

	var winner string
	var confidence float64
	if result := st.sess.Result(); result != nil {
		winner = result.Winner
		confidence = result.Confidence
		p.writer.Enqueue(storage.PredictionInsert{RequestID: id, Timestamp: ts, Prediction: *result})
	}

	p.writer.Enqueue(storage.OutcomeUpdate{
		RequestID:    id,
		Timestamp:    ts,
		StepCount:    len(steps),
		Winner:       winner,
		Confidence:   confidence,
		ErrorMessage: st.sess.ErrMessage(),
	})

	log.Debug().
		Str("request_id", requestID).
		Int("steps", len(steps)).
		Str("status", string(st.sess.Status())).
		Str("winner", winner).
		Msg("prediction stream processed")
}

// sweepLocked finalizes requests whose done marker never arrived.
func (p *Processor) sweepLocked() {
	if time.Since(p.lastSweep) < time.Minute {
		return
	}
	p.lastSweep = time.Now()

	for id, st := range p.active {
		if time.Since(st.started) > staleAfter {
			log.Warn().Str("request_id", id).Msg("finalizing abandoned prediction stream")
			p.finalizeLocked(id, st.started)
		}
	}
}

// doneTimestamp recovers the gateway's request timestamp from the done
// marker payload.
func doneTimestamp(data []byte) time.Time {
	var marker struct {
		TS int64 `json:"ts"`
	}
	if err := json.Unmarshal(data, &marker); err == nil && marker.TS > 0 {
		return time.Unix(0, marker.TS)
	}
	return time.Now()
}
