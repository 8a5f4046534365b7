package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RequestRecord is one prediction request as seen at the gateway.
type RequestRecord struct {
	ID             uuid.UUID
	Timestamp      time.Time
	HomeTeam       string
	AwayTeam       string
	GameDate       string
	StatusCode     int
	Success        bool
	ErrorMessage   string
	ResponseTimeMs int
}

// RequestInsert writes the initial request row.
type RequestInsert struct {
	Record RequestRecord
}

func (j RequestInsert) Execute(ctx context.Context, pool *pgxpool.Pool) error {
	r := j.Record
	_, err := pool.Exec(ctx, `
		INSERT INTO prediction_requests (
			id, ts, home_team, away_team, game_date,
			status_code, success, error_message, response_time_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		r.ID, r.Timestamp, r.HomeTeam, r.AwayTeam, r.GameDate,
		r.StatusCode, r.Success, nilIfEmpty(r.ErrorMessage), r.ResponseTimeMs,
	)
	return err
}

// OutcomeUpdate records how the stream ended: how many steps arrived
// and, when the agent delivered a verdict, the winner and confidence.
// ErrorMessage carries an agent-reported or truncation failure.
type OutcomeUpdate struct {
	RequestID    uuid.UUID
	Timestamp    time.Time
	StepCount    int
	Winner       string
	Confidence   float64
	ErrorMessage string
}

func (j OutcomeUpdate) Execute(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		UPDATE prediction_requests SET
			step_count = $1,
			winner = COALESCE($2, winner),
			confidence = $3,
			success = $4,
			error_message = COALESCE($5, error_message)
		WHERE id = $6 AND ts = $7`,
		j.StepCount, nilIfEmpty(j.Winner), j.Confidence, j.Winner != "",
		nilIfEmpty(j.ErrorMessage), j.RequestID, j.Timestamp,
	)
	return err
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
