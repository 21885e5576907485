package snapshot

import (
	"context"
	"errors"
	"time"

	"backend-virtualrun/internal/db"
	"backend-virtualrun/internal/stream"

	"github.com/jackc/pgx/v5"
)

var nowFn = time.Now

const snapshotColumns = `
	session_id, participant_id, distance_m, duration_sec, pace_sec_per_km,
	heart_rate_bpm, calories_kcal, seq, paused, client_recorded_at, server_received_at`

// Service is the backend side of the snapshot synchronization engine: the
// durable path (validated, throttled upsert) and the fallback read. The
// ephemeral path only passes through here to reach the hub.
type Service struct {
	db    db.Pool
	hub   *stream.Hub
	rules Rules
}

func NewService(pool db.Pool, hub *stream.Hub, rules Rules) *Service {
	return &Service{db: pool, hub: hub, rules: rules}
}

// Upsert persists the participant's latest sample, subject to the
// validation gate. The previous row is read under lock so concurrent
// writes from the same participant serialize.
func (s *Service) Upsert(ctx context.Context, sessionID, participantID string, sample Sample) (Snapshot, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status, inviterID, inviteeID string
	err = tx.QueryRow(ctx, `
		SELECT status, inviter_id, invitee_id FROM run_sessions WHERE id=$1
	`, sessionID).Scan(&status, &inviterID, &inviteeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrSessionNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}
	if participantID != inviterID && participantID != inviteeID {
		return Snapshot{}, ErrNotParticipant
	}
	if status != "active" {
		return Snapshot{}, ErrSessionNotActive
	}

	now := nowFn()
	if err := s.rules.checkSample(sample); err != nil {
		return Snapshot{}, err
	}

	prev, err := scanSnapshot(tx.QueryRow(ctx, `
		SELECT `+snapshotColumns+`
		FROM run_snapshots
		WHERE session_id=$1 AND participant_id=$2
		FOR UPDATE
	`, sessionID, participantID))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// first durable write for this participant
	case err != nil:
		return Snapshot{}, err
	default:
		if err := s.rules.checkAgainstPrevious(prev, sample, now); err != nil {
			return Snapshot{}, err
		}
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO run_snapshots (session_id, participant_id, distance_m, duration_sec,
			pace_sec_per_km, heart_rate_bpm, calories_kcal, seq, paused,
			client_recorded_at, server_received_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (session_id, participant_id) DO UPDATE SET
			distance_m=EXCLUDED.distance_m,
			duration_sec=EXCLUDED.duration_sec,
			pace_sec_per_km=EXCLUDED.pace_sec_per_km,
			heart_rate_bpm=EXCLUDED.heart_rate_bpm,
			calories_kcal=EXCLUDED.calories_kcal,
			seq=EXCLUDED.seq,
			paused=EXCLUDED.paused,
			client_recorded_at=EXCLUDED.client_recorded_at,
			server_received_at=EXCLUDED.server_received_at
		RETURNING `+snapshotColumns,
		sessionID, participantID, sample.DistanceM, sample.DurationSec,
		sample.PaceSecPerKm, sample.HeartRateBpm, sample.CaloriesKcal, sample.Seq,
		sample.Paused, sample.ClientRecordedAt, now)
	snap, err := scanSnapshot(row)
	if err != nil {
		return Snapshot{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Snapshot{}, err
	}

	// Persisted-change event on the same subscription as live samples, so
	// a partner that missed broadcasts still converges.
	s.publish(sessionID, participantID, sample, true)
	return snap, nil
}

// Latest is the reconnect fallback: the freshest persisted sample, which
// may lag the live view by up to the durable cadence.
func (s *Service) Latest(ctx context.Context, sessionID, participantID string) (Snapshot, error) {
	snap, err := scanSnapshot(s.db.QueryRow(ctx, `
		SELECT `+snapshotColumns+`
		FROM run_snapshots
		WHERE session_id=$1 AND participant_id=$2
	`, sessionID, participantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrSnapshotNotFound
	}
	return snap, err
}

// PublishBroadcast is the ephemeral path: fire-and-forget, no persistence,
// no gate beyond payload shape. Receivers drop stale sequence numbers.
func (s *Service) PublishBroadcast(sessionID, participantID string, sample Sample) {
	s.publish(sessionID, participantID, sample, false)
}

func (s *Service) publish(sessionID, participantID string, sample Sample, durable bool) {
	if s.hub == nil {
		return
	}
	payload, err := stream.SampleEnvelope(sessionID, participantID, sample.Seq, durable, stream.SamplePayload{
		DistanceM:        sample.DistanceM,
		DurationSec:      sample.DurationSec,
		PaceSecPerKm:     sample.PaceSecPerKm,
		HeartRateBpm:     sample.HeartRateBpm,
		CaloriesKcal:     sample.CaloriesKcal,
		Paused:           sample.Paused,
		ClientRecordedAt: sample.ClientRecordedAt,
	})
	if err != nil {
		return
	}
	s.hub.Broadcast(sessionID, payload)
}

func scanSnapshot(row pgx.Row) (Snapshot, error) {
	var snap Snapshot
	err := row.Scan(
		&snap.SessionID, &snap.ParticipantID, &snap.DistanceM, &snap.DurationSec,
		&snap.PaceSecPerKm, &snap.HeartRateBpm, &snap.CaloriesKcal, &snap.Seq,
		&snap.Paused, &snap.ClientRecordedAt, &snap.ServerReceivedAt,
	)
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
