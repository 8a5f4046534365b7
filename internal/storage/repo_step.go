package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/courtside-labs/hoopstream/internal/session"
	"github.com/courtside-labs/hoopstream/internal/stream"
)

// StepsInsert bulk-inserts a session's step log with the COPY
// protocol. Steps are written once, after the stream terminates.
type StepsInsert struct {
	RequestID uuid.UUID
	Timestamp time.Time
	Steps     []session.Step
}

func (j StepsInsert) Execute(ctx context.Context, pool *pgxpool.Pool) error {
	rows := make([][]interface{}, len(j.Steps))
	for i, st := range j.Steps {
		var detail []byte
		if len(st.Detail) > 0 {
			detail, _ = json.Marshal(st.Detail)
		}
		rows[i] = []interface{}{
			j.RequestID,
			j.Timestamp,
			i,
			st.EventType,
			st.Phase,
			st.Title,
			detail,
			st.RawBytes,
		}
	}

	_, err := pool.CopyFrom(ctx,
		pgx.Identifier{"prediction_steps"},
		[]string{"request_id", "ts", "step_index", "event_type", "phase", "title", "detail", "raw_bytes"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// PredictionInsert stores the agent's final verdict.
type PredictionInsert struct {
	RequestID  uuid.UUID
	Timestamp  time.Time
	Prediction stream.Prediction
}

func (j PredictionInsert) Execute(ctx context.Context, pool *pgxpool.Pool) error {
	factors, _ := json.Marshal(j.Prediction.KeyFactors)
	_, err := pool.Exec(ctx, `
		INSERT INTO predictions (request_id, ts, winner, confidence, key_factors, detailed_analysis)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		j.RequestID, j.Timestamp, j.Prediction.Winner, j.Prediction.Confidence,
		factors, nilIfEmpty(j.Prediction.DetailedAnalysis),
	)
	return err
}
