// Package gateway exposes the prediction endpoint: it validates the
// request, relays the agent's SSE byte stream to the caller unmodified,
// and fans each chunk out to JetStream for the analytics consumer.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	nats "github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/courtside-labs/hoopstream/internal/agent"
	"github.com/courtside-labs/hoopstream/internal/jetstream"
	"github.com/courtside-labs/hoopstream/internal/storage"
)

type Handler struct {
	agent   *agent.Client
	writer  storage.JobQueue
	js      nats.JetStreamContext
	limiter *rate.Limiter
	mux     *http.ServeMux
}

func NewHandler(agentClient *agent.Client, writer storage.JobQueue, js nats.JetStreamContext, rps float64, burst int) *Handler {
	h := &Handler{
		agent:   agentClient,
		writer:  writer,
		js:      js,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		mux:     http.NewServeMux(),
	}
	h.mux.HandleFunc("POST /api/predict", h.handlePredict)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok","service":"hoopstream"}`))
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "too many prediction requests")
		return
	}

	var req agent.PredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.HomeTeam == "" || req.AwayTeam == "" || req.GameDate == "" {
		writeError(w, http.StatusBadRequest, "home_team, away_team and game_date are required")
		return
	}

	requestID := uuid.New()
	ts := time.Now()

	body, err := h.agent.Open(r.Context(), req)
	if err != nil {
		status, msg := mapAgentError(err)
		if status == 0 {
			// Caller went away before the agent answered; nothing to report.
			return
		}
		writeError(w, status, msg)
		h.writer.Enqueue(storage.RequestInsert{Record: storage.RequestRecord{
			ID:             requestID,
			Timestamp:      ts,
			HomeTeam:       req.HomeTeam,
			AwayTeam:       req.AwayTeam,
			GameDate:       req.GameDate,
			StatusCode:     status,
			Success:        false,
			ErrorMessage:   msg,
			ResponseTimeMs: int(time.Since(ts).Milliseconds()),
		}})
		log.Warn().
			Str("request_id", requestID.String()).
			Int("status", status).
			Str("error", msg).
			Msg("prediction request failed upstream")
		return
	}
	defer body.Close()

	h.writer.Enqueue(storage.RequestInsert{Record: storage.RequestRecord{
		ID:             requestID,
		Timestamp:      ts,
		HomeTeam:       req.HomeTeam,
		AwayTeam:       req.AwayTeam,
		GameDate:       req.GameDate,
		StatusCode:     http.StatusOK,
		Success:        true,
		ResponseTimeMs: int(time.Since(ts).Milliseconds()),
	}})

	setStreamHeaders(w.Header())
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	subject := jetstream.ChunkSubject(requestID.String())
	var relayed int64

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			h.js.Publish(subject, buf[:n])
			w.Write(buf[:n])
			if canFlush {
				flusher.Flush()
			}
			relayed += int64(n)
		}
		if readErr != nil {
			if readErr != io.EOF && !errors.Is(readErr, context.Canceled) {
				log.Warn().Err(readErr).Str("request_id", requestID.String()).Msg("stream relay interrupted")
			}
			break
		}
	}

	done, _ := json.Marshal(map[string]any{"ts": ts.UnixNano()})
	h.js.Publish(jetstream.DoneSubject(requestID.String()), done)

	log.Info().
		Str("request_id", requestID.String()).
		Str("home", req.HomeTeam).
		Str("away", req.AwayTeam).
		Str("date", req.GameDate).
		Int64("bytes", relayed).
		Dur("duration", time.Since(ts)).
		Msg("prediction stream relayed")
}

// mapAgentError converts transport failures to the HTTP status and
// message shown to the caller: 504 for timeout, 503 for connection
// failure, 502 for a bodyless success, otherwise the agent's own
// status. A zero status means the caller cancelled.
func mapAgentError(err error) (int, string) {
	switch {
	case errors.Is(err, context.Canceled):
		return 0, ""
	case errors.Is(err, agent.ErrTimeout):
		return http.StatusGatewayTimeout, "prediction agent timed out"
	case errors.Is(err, agent.ErrConnectionFailed):
		return http.StatusServiceUnavailable, "prediction agent is unreachable"
	case errors.Is(err, agent.ErrNoBody):
		return http.StatusBadGateway, "prediction agent returned no stream"
	}

	var up *agent.UpstreamError
	if errors.As(err, &up) {
		return up.Status, up.Detail
	}
	return http.StatusBadGateway, "prediction request failed"
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
