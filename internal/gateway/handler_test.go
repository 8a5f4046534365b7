package gateway

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	nats "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtside-labs/hoopstream/internal/agent"
	"github.com/courtside-labs/hoopstream/internal/jetstream"
	"github.com/courtside-labs/hoopstream/internal/storage"
)

const agentStream = "event: plan\n" +
	"data: {\"step\":1,\"phase\":\"planning\",\"title\":\"Analyzing\",\"detail\":\"x\"}\n\n" +
	"event: result\n" +
	"data: {\"step\":2,\"title\":\"Done\",\"prediction\":{\"winner\":\"LAL\",\"confidence\":0.7,\"key_factors\":[],\"detailed_analysis\":\"a\"}}\n\n"

type fakeJS struct {
	nats.JetStreamContext

	mu   sync.Mutex
	msgs []*nats.Msg
}

func (f *fakeJS) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.msgs = append(f.msgs, &nats.Msg{Subject: subj, Data: cp})
	return &nats.PubAck{}, nil
}

func (f *fakeJS) published() []*nats.Msg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*nats.Msg(nil), f.msgs...)
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []storage.WriteJob
}

func (q *fakeQueue) Enqueue(job storage.WriteJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
}

func (q *fakeQueue) all() []storage.WriteJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]storage.WriteJob(nil), q.jobs...)
}

func newTestHandler(agentURL string, timeout time.Duration) (*Handler, *fakeJS, *fakeQueue) {
	js := &fakeJS{}
	queue := &fakeQueue{}
	h := NewHandler(agent.NewClient(agentURL, timeout), queue, js, 100, 100)
	return h, js, queue
}

func postPredict(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const validBody = `{"home_team":"Lakers","away_team":"Celtics","game_date":"2026-02-12"}`

func TestPredictRelaysStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, agentStream)
	}))
	defer srv.Close()

	h, js, queue := newTestHandler(srv.URL, time.Minute)
	rec := postPredict(h, validBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
	assert.Equal(t, agentStream, rec.Body.String(), "byte stream passes through unmodified")

	msgs := js.published()
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.True(t, strings.HasSuffix(last.Subject, ".done"), "relay ends with a done marker")

	var chunkBytes []byte
	for _, m := range msgs[:len(msgs)-1] {
		_, done, ok := jetstream.SplitSubject(m.Subject)
		require.True(t, ok)
		require.False(t, done)
		chunkBytes = append(chunkBytes, m.Data...)
	}
	assert.Equal(t, agentStream, string(chunkBytes), "fan-out carries the same bytes as the relay")

	jobs := queue.all()
	require.Len(t, jobs, 1)
	insert, ok := jobs[0].(storage.RequestInsert)
	require.True(t, ok)
	assert.Equal(t, "Lakers", insert.Record.HomeTeam)
	assert.True(t, insert.Record.Success)
	assert.Equal(t, http.StatusOK, insert.Record.StatusCode)
}

func TestPredictValidatesFields(t *testing.T) {
	h, js, queue := newTestHandler("http://localhost:1", time.Minute)

	for _, body := range []string{
		`{"home_team":"","away_team":"Celtics","game_date":"2026-02-12"}`,
		`{"home_team":"Lakers","away_team":"","game_date":"2026-02-12"}`,
		`{"home_team":"Lakers","away_team":"Celtics","game_date":""}`,
		`{`,
	} {
		rec := postPredict(h, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		assert.Contains(t, rec.Body.String(), "error")
	}

	assert.Empty(t, js.published(), "rejected requests never reach the agent")
	assert.Empty(t, queue.all())
}

func TestPredictMirrorsUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"detail":"unknown team"}`)
	}))
	defer srv.Close()

	h, _, queue := newTestHandler(srv.URL, time.Minute)
	rec := postPredict(h, validBody)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown team")

	jobs := queue.all()
	require.Len(t, jobs, 1)
	insert := jobs[0].(storage.RequestInsert)
	assert.False(t, insert.Record.Success)
	assert.Equal(t, http.StatusUnprocessableEntity, insert.Record.StatusCode)
}

func TestPredictAgentTimeoutMapsTo504(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	h, _, _ := newTestHandler(srv.URL, 50*time.Millisecond)
	rec := postPredict(h, validBody)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Contains(t, rec.Body.String(), "timed out")
}

func TestPredictAgentUnreachableMapsTo503(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	h, _, _ := newTestHandler(srv.URL, time.Minute)
	rec := postPredict(h, validBody)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unreachable")
}

func TestPredictRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, agentStream)
	}))
	defer srv.Close()

	js := &fakeJS{}
	h := NewHandler(agent.NewClient(srv.URL, time.Minute), &fakeQueue{}, js, 0.001, 1)

	assert.Equal(t, http.StatusOK, postPredict(h, validBody).Code)
	assert.Equal(t, http.StatusTooManyRequests, postPredict(h, validBody).Code)
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestHandler("http://localhost:1", time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}
