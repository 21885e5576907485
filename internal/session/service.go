package session

import (
	"context"
	"errors"
	"time"

	"backend-virtualrun/internal/db"
	"backend-virtualrun/internal/eventlog"
	"backend-virtualrun/internal/stream"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var nowFn = time.Now

const sessionColumns = `
	id, inviter_id, invitee_id, status, created_at, expires_at, started_at, ended_at,
	inviter_distance_m, inviter_duration_sec, inviter_avg_pace_sec, inviter_avg_hr,
	invitee_distance_m, invitee_duration_sec, invitee_avg_pace_sec, invitee_avg_hr,
	winner_id`

// Service owns the session lifecycle: invite, accept, decline/cancel, and
// the two-phase completion protocol. Transitions that race between the two
// participants run inside a transaction with the session row locked.
type Service struct {
	db     db.Pool
	hub    *stream.Hub
	events *eventlog.Recorder

	inviteTTL   time.Duration
	pendingCeil int
}

func NewService(pool db.Pool, hub *stream.Hub, events *eventlog.Recorder, inviteTTL time.Duration, pendingCeil int) *Service {
	return &Service{
		db:          pool,
		hub:         hub,
		events:      events,
		inviteTTL:   inviteTTL,
		pendingCeil: pendingCeil,
	}
}

// CreateInvite starts a session in pending state. The pending-invite
// ceiling and the duplicate-pair check are the validation gate for
// session inserts: a rejected invite leaves no trace.
func (s *Service) CreateInvite(ctx context.Context, inviterID, inviteeID string) (Session, error) {
	if inviterID == inviteeID {
		return Session{}, ErrSelfInvite
	}

	var pendingCount int
	if err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM run_sessions
		WHERE inviter_id=$1 AND status=$2
	`, inviterID, StatusPending).Scan(&pendingCount); err != nil {
		return Session{}, err
	}
	if pendingCount >= s.pendingCeil {
		return Session{}, ErrInviteCeiling
	}

	var duplicate bool
	if err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM run_sessions
			WHERE status=$3
			  AND ((inviter_id=$1 AND invitee_id=$2) OR (inviter_id=$2 AND invitee_id=$1))
		)
	`, inviterID, inviteeID, StatusPending).Scan(&duplicate); err != nil {
		return Session{}, err
	}
	if duplicate {
		return Session{}, ErrDuplicateInvite
	}

	now := nowFn()
	sess := Session{
		ID:        uuid.NewString(),
		InviterID: inviterID,
		InviteeID: inviteeID,
		Status:    StatusPending,
	}
	expiresAt := now.Add(s.inviteTTL)

	row := s.db.QueryRow(ctx, `
		INSERT INTO run_sessions (id, inviter_id, invitee_id, status, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, expires_at
	`, sess.ID, inviterID, inviteeID, StatusPending, now, expiresAt)
	if err := row.Scan(&sess.CreatedAt, &sess.ExpiresAt); err != nil {
		return Session{}, err
	}

	s.events.Append(ctx, sess.ID, inviterID, "invite_created", map[string]string{"invitee_id": inviteeID})
	return sess, nil
}

// AcceptInvite moves a pending session to active. Advisory locks on both
// participant ids serialize concurrent accepts, so the single-active-session
// invariant holds even across a participant's different sessions.
func (s *Service) AcceptInvite(ctx context.Context, sessionID, callerID string) (Session, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Session{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sess, err := lockSession(ctx, tx, sessionID)
	if err != nil {
		return Session{}, err
	}

	if callerID != sess.InviterID && callerID != sess.InviteeID {
		return Session{}, ErrNotParticipant
	}
	if callerID != sess.InviteeID {
		return Session{}, ErrNotInvitee
	}
	if sess.Status != StatusPending {
		return Session{}, ErrNotPending
	}
	now := nowFn()
	if sess.ExpiresAt != nil && now.After(*sess.ExpiresAt) {
		return Session{}, ErrInviteExpired
	}

	// Lock participants in a fixed order to avoid deadlock between
	// two simultaneous accepts touching the same pair.
	first, second := sess.InviterID, sess.InviteeID
	if second < first {
		first, second = second, first
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, first); err != nil {
		return Session{}, err
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, second); err != nil {
		return Session{}, err
	}

	var activeCount int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM run_sessions
		WHERE status=$3
		  AND (inviter_id IN ($1,$2) OR invitee_id IN ($1,$2))
	`, sess.InviterID, sess.InviteeID, StatusActive).Scan(&activeCount); err != nil {
		return Session{}, err
	}
	if activeCount > 0 {
		return Session{}, ErrAlreadyActive
	}

	row := tx.QueryRow(ctx, `
		UPDATE run_sessions
		SET status=$2, expires_at=NULL, started_at=$3
		WHERE id=$1
		RETURNING `+sessionColumns, sessionID, StatusActive, now)
	sess, err = scanSession(row)
	if err != nil {
		return Session{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Session{}, err
	}

	s.events.Append(ctx, sess.ID, callerID, "invite_accepted", nil)
	s.announce(sess.ID, StatusActive)
	return sess, nil
}

// DeclineOrCancel ends a pending or active session. Either participant may
// call it; the partner's client tears down on observing the transition.
func (s *Service) DeclineOrCancel(ctx context.Context, sessionID, callerID string) (Session, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE run_sessions
		SET status=$3, expires_at=NULL, ended_at=$4
		WHERE id=$1
		  AND (inviter_id=$2 OR invitee_id=$2)
		  AND status IN ($5,$6)
		RETURNING `+sessionColumns,
		sessionID, callerID, StatusCancelled, nowFn(), StatusPending, StatusActive)
	sess, err := scanSession(row)
	if err == nil {
		s.events.Append(ctx, sess.ID, callerID, "session_cancelled", nil)
		s.announce(sess.ID, StatusCancelled)
		return sess, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Session{}, err
	}

	// Nothing matched; work out which rule the caller hit.
	existing, lookupErr := s.Get(ctx, sessionID)
	if lookupErr != nil {
		return Session{}, lookupErr
	}
	if callerID != existing.InviterID && callerID != existing.InviteeID {
		return Session{}, ErrNotParticipant
	}
	return Session{}, ErrSessionClosed
}

// SubmitFinalStats is the completion coordinator. Each participant calls it
// independently with their own numbers; the latest call per participant is
// authoritative. The session completes only once both final durations exist,
// and the winner is whoever ran strictly farther.
func (s *Service) SubmitFinalStats(ctx context.Context, sessionID, participantID string, in FinalStatsInput) (Session, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Session{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sess, err := lockSession(ctx, tx, sessionID)
	if err != nil {
		return Session{}, err
	}

	if participantID != sess.InviterID && participantID != sess.InviteeID {
		return Session{}, ErrNotParticipant
	}
	switch sess.Status {
	case StatusActive, StatusCompleted:
	case StatusPending:
		return Session{}, ErrSessionNotActive
	default:
		return Session{}, ErrSessionClosed
	}

	final := FinalStats{
		DistanceM:    &in.DistanceM,
		DurationSec:  &in.DurationSec,
		AvgPaceSec:   in.AvgPaceSec,
		AvgHeartRate: in.AvgHeartRate,
	}
	if participantID == sess.InviterID {
		sess.InviterFinal = final
		_, err = tx.Exec(ctx, `
			UPDATE run_sessions
			SET inviter_distance_m=$2, inviter_duration_sec=$3, inviter_avg_pace_sec=$4, inviter_avg_hr=$5
			WHERE id=$1
		`, sessionID, in.DistanceM, in.DurationSec, in.AvgPaceSec, in.AvgHeartRate)
	} else {
		sess.InviteeFinal = final
		_, err = tx.Exec(ctx, `
			UPDATE run_sessions
			SET invitee_distance_m=$2, invitee_duration_sec=$3, invitee_avg_pace_sec=$4, invitee_avg_hr=$5
			WHERE id=$1
		`, sessionID, in.DistanceM, in.DurationSec, in.AvgPaceSec, in.AvgHeartRate)
	}
	if err != nil {
		return Session{}, err
	}

	finalized := false
	if sess.InviterFinal.Submitted() && sess.InviteeFinal.Submitted() {
		winnerID := winner(sess)
		row := tx.QueryRow(ctx, `
			UPDATE run_sessions
			SET status=$2, ended_at=COALESCE(ended_at, $3), winner_id=$4
			WHERE id=$1
			RETURNING `+sessionColumns, sessionID, StatusCompleted, nowFn(), winnerID)
		sess, err = scanSession(row)
		if err != nil {
			return Session{}, err
		}
		finalized = sess.Status == StatusCompleted
	}

	if err := tx.Commit(ctx); err != nil {
		return Session{}, err
	}

	s.events.Append(ctx, sessionID, participantID, "final_stats_submitted", in)
	if finalized {
		s.events.Append(ctx, sessionID, "", "session_completed", map[string]any{"winner_id": sess.WinnerID})
		s.announce(sessionID, StatusCompleted)
	}
	return sess, nil
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, sessionID string) (Session, error) {
	row := s.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM run_sessions WHERE id=$1`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return sess, err
}

// ActiveSession recovers the caller's in-flight run after a client restart.
func (s *Service) ActiveSession(ctx context.Context, participantID string) (Session, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM run_sessions
		WHERE status=$2 AND (inviter_id=$1 OR invitee_id=$1)
		LIMIT 1
	`, participantID, StatusActive)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNoActiveSession
	}
	return sess, err
}

func (s *Service) announce(sessionID, status string) {
	if s.hub == nil {
		return
	}
	if payload, err := stream.StatusEnvelope(sessionID, status); err == nil {
		s.hub.Broadcast(sessionID, payload)
	}
}

// winner returns the id of the participant with strictly greater final
// distance, or nil on a tie. Distance alone decides; duration and pace are
// not tiebreakers.
func winner(sess Session) *string {
	a, b := sess.InviterFinal.DistanceM, sess.InviteeFinal.DistanceM
	if a == nil || b == nil {
		return nil
	}
	switch {
	case *a > *b:
		id := sess.InviterID
		return &id
	case *b > *a:
		id := sess.InviteeID
		return &id
	default:
		return nil
	}
}

func lockSession(ctx context.Context, tx pgx.Tx, sessionID string) (Session, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM run_sessions WHERE id=$1
		FOR UPDATE
	`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return sess, err
}

func scanSession(row pgx.Row) (Session, error) {
	var sess Session
	err := row.Scan(
		&sess.ID, &sess.InviterID, &sess.InviteeID, &sess.Status,
		&sess.CreatedAt, &sess.ExpiresAt, &sess.StartedAt, &sess.EndedAt,
		&sess.InviterFinal.DistanceM, &sess.InviterFinal.DurationSec,
		&sess.InviterFinal.AvgPaceSec, &sess.InviterFinal.AvgHeartRate,
		&sess.InviteeFinal.DistanceM, &sess.InviteeFinal.DurationSec,
		&sess.InviteeFinal.AvgPaceSec, &sess.InviteeFinal.AvgHeartRate,
		&sess.WinnerID,
	)
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}
