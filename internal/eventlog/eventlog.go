package eventlog

import (
	"context"
	"encoding/json"

	"backend-virtualrun/internal/db"

	"github.com/rs/zerolog"
)

// Recorder appends diagnostic events for a session. Entries are never read
// by protocol code and a failed append never fails the caller.
type Recorder struct {
	db  db.Querier
	log zerolog.Logger
}

func NewRecorder(q db.Querier, log zerolog.Logger) *Recorder {
	return &Recorder{db: q, log: log}
}

func (r *Recorder) Append(ctx context.Context, sessionID, participantID, eventType string, payload any) {
	if r == nil || r.db == nil {
		return
	}

	var body []byte
	if payload != nil {
		body, _ = json.Marshal(payload)
	}

	var pid any
	if participantID != "" {
		pid = participantID
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO run_events (session_id, participant_id, event_type, payload)
		VALUES ($1,$2,$3,$4)
	`, sessionID, pid, eventType, body)
	if err != nil {
		r.log.Warn().Err(err).Str("event", eventType).Str("session", sessionID).Msg("event append failed")
	}
}
