package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
)

func fp(v float64) *float64  { return &v }
func i64p(v int64) *int64    { return &v }
func ip(v int) *int          { return &v }
func sp(v string) *string    { return &v }
func tp(v time.Time) *time.Time { return &v }

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func newTestService(mock pgxmock.PgxPoolIface) *Service {
	return NewService(mock, nil, nil, 5*time.Minute, 5)
}

func sessionRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "inviter_id", "invitee_id", "status", "created_at", "expires_at", "started_at", "ended_at",
		"inviter_distance_m", "inviter_duration_sec", "inviter_avg_pace_sec", "inviter_avg_hr",
		"invitee_distance_m", "invitee_duration_sec", "invitee_avg_pace_sec", "invitee_avg_hr",
		"winner_id",
	})
}

func pendingRow(id string, expiresAt time.Time) *pgxmock.Rows {
	return sessionRows().AddRow(
		id, "inviter-1", "invitee-1", StatusPending, time.Now(), tp(expiresAt), nil, nil,
		nil, nil, nil, nil, nil, nil, nil, nil, nil,
	)
}

func activeRow(id string) *pgxmock.Rows {
	return sessionRows().AddRow(
		id, "inviter-1", "invitee-1", StatusActive, time.Now(), nil, tp(time.Now()), nil,
		nil, nil, nil, nil, nil, nil, nil, nil, nil,
	)
}

func TestCreateInvite(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM run_sessions`).
		WithArgs("inviter-1", StatusPending).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("inviter-1", "invitee-1", StatusPending).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO run_sessions`).
		WithArgs(pgxmock.AnyArg(), "inviter-1", "invitee-1", StatusPending, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "expires_at"}).
			AddRow(time.Now(), tp(time.Now().Add(5*time.Minute))))

	sess, err := svc.CreateInvite(context.Background(), "inviter-1", "invitee-1")
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}
	if sess.Status != StatusPending {
		t.Fatalf("unexpected status: %s", sess.Status)
	}
	if sess.ExpiresAt == nil {
		t.Fatalf("pending invite must carry expires_at")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateInviteSelf(t *testing.T) {
	svc := newTestService(newMock(t))
	_, err := svc.CreateInvite(context.Background(), "user-1", "user-1")
	if !errors.Is(err, ErrSelfInvite) {
		t.Fatalf("expected ErrSelfInvite, got %v", err)
	}
}

func TestCreateInviteCeiling(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM run_sessions`).
		WithArgs("inviter-1", StatusPending).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(5))

	_, err := svc.CreateInvite(context.Background(), "inviter-1", "invitee-1")
	if !errors.Is(err, ErrInviteCeiling) {
		t.Fatalf("expected ErrInviteCeiling, got %v", err)
	}
}

func TestCreateInviteDuplicatePair(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM run_sessions`).
		WithArgs("inviter-1", StatusPending).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("inviter-1", "invitee-1", StatusPending).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := svc.CreateInvite(context.Background(), "inviter-1", "invitee-1")
	if !errors.Is(err, ErrDuplicateInvite) {
		t.Fatalf("expected ErrDuplicateInvite, got %v", err)
	}
}

func expectAdvisoryLocks(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
}

func TestAcceptInvite(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM run_sessions WHERE id=\$1`).
		WithArgs("session-1").
		WillReturnRows(pendingRow("session-1", time.Now().Add(time.Minute)))
	expectAdvisoryLocks(mock)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM run_sessions`).
		WithArgs("inviter-1", "invitee-1", StatusActive).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`UPDATE run_sessions`).
		WithArgs("session-1", StatusActive, pgxmock.AnyArg()).
		WillReturnRows(activeRow("session-1"))
	mock.ExpectCommit()

	sess, err := svc.AcceptInvite(context.Background(), "session-1", "invitee-1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if sess.Status != StatusActive {
		t.Fatalf("unexpected status: %s", sess.Status)
	}
	if sess.ExpiresAt != nil {
		t.Fatalf("active session must not carry expires_at")
	}
	if sess.StartedAt == nil {
		t.Fatalf("expected started_at")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAcceptInviteAlreadyActive(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM run_sessions WHERE id=\$1`).
		WithArgs("session-1").
		WillReturnRows(pendingRow("session-1", time.Now().Add(time.Minute)))
	expectAdvisoryLocks(mock)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM run_sessions`).
		WithArgs("inviter-1", "invitee-1", StatusActive).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := svc.AcceptInvite(context.Background(), "session-1", "invitee-1")
	if !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
}

func TestAcceptInviteExpired(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM run_sessions WHERE id=\$1`).
		WithArgs("session-1").
		WillReturnRows(pendingRow("session-1", time.Now().Add(-time.Minute)))
	mock.ExpectRollback()

	_, err := svc.AcceptInvite(context.Background(), "session-1", "invitee-1")
	if !errors.Is(err, ErrInviteExpired) {
		t.Fatalf("expected ErrInviteExpired, got %v", err)
	}
}

func TestAcceptInviteWrongCaller(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM run_sessions WHERE id=\$1`).
		WithArgs("session-1").
		WillReturnRows(pendingRow("session-1", time.Now().Add(time.Minute)))
	mock.ExpectRollback()

	_, err := svc.AcceptInvite(context.Background(), "session-1", "inviter-1")
	if !errors.Is(err, ErrNotInvitee) {
		t.Fatalf("expected ErrNotInvitee, got %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM run_sessions WHERE id=\$1`).
		WithArgs("session-1").
		WillReturnRows(pendingRow("session-1", time.Now().Add(time.Minute)))
	mock.ExpectRollback()

	_, err = svc.AcceptInvite(context.Background(), "session-1", "stranger")
	if !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestAcceptInviteNotPending(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM run_sessions WHERE id=\$1`).
		WithArgs("session-1").
		WillReturnRows(activeRow("session-1"))
	mock.ExpectRollback()

	_, err := svc.AcceptInvite(context.Background(), "session-1", "invitee-1")
	if !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
}

func TestAcceptInviteNotFound(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM run_sessions WHERE id=\$1`).
		WithArgs("missing").
		WillReturnRows(sessionRows())
	mock.ExpectRollback()

	_, err := svc.AcceptInvite(context.Background(), "missing", "invitee-1")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestDeclineOrCancel(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	cancelled := sessionRows().AddRow(
		"session-1", "inviter-1", "invitee-1", StatusCancelled, time.Now(), nil, tp(time.Now()), tp(time.Now()),
		nil, nil, nil, nil, nil, nil, nil, nil, nil,
	)
	mock.ExpectQuery(`UPDATE run_sessions`).
		WithArgs("session-1", "inviter-1", StatusCancelled, pgxmock.AnyArg(), StatusPending, StatusActive).
		WillReturnRows(cancelled)

	sess, err := svc.DeclineOrCancel(context.Background(), "session-1", "inviter-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if sess.Status != StatusCancelled || sess.EndedAt == nil {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestDeclineOrCancelClosed(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	mock.ExpectQuery(`UPDATE run_sessions`).
		WithArgs("session-1", "inviter-1", StatusCancelled, pgxmock.AnyArg(), StatusPending, StatusActive).
		WillReturnRows(sessionRows())
	completed := sessionRows().AddRow(
		"session-1", "inviter-1", "invitee-1", StatusCompleted, time.Now(), nil, tp(time.Now()), tp(time.Now()),
		fp(5000), i64p(1800), nil, nil, fp(4800), i64p(1840), nil, nil, sp("inviter-1"),
	)
	mock.ExpectQuery(`FROM run_sessions WHERE id=\$1`).
		WithArgs("session-1").
		WillReturnRows(completed)

	_, err := svc.DeclineOrCancel(context.Background(), "session-1", "inviter-1")
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestDeclineOrCancelNotParticipant(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	mock.ExpectQuery(`UPDATE run_sessions`).
		WithArgs("session-1", "stranger", StatusCancelled, pgxmock.AnyArg(), StatusPending, StatusActive).
		WillReturnRows(sessionRows())
	mock.ExpectQuery(`FROM run_sessions WHERE id=\$1`).
		WithArgs("session-1").
		WillReturnRows(activeRow("session-1"))

	_, err := svc.DeclineOrCancel(context.Background(), "session-1", "stranger")
	if !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestSubmitFinalStatsFirstCallerKeepsSessionActive(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM run_sessions WHERE id=\$1`).
		WithArgs("session-1").
		WillReturnRows(activeRow("session-1"))
	mock.ExpectExec(`UPDATE run_sessions`).
		WithArgs("session-1", 5000.0, int64(1800), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	sess, err := svc.SubmitFinalStats(context.Background(), "session-1", "inviter-1",
		FinalStatsInput{DistanceM: 5000, DurationSec: 1800})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sess.Status != StatusActive {
		t.Fatalf("one submission must not complete the session, got %s", sess.Status)
	}
	if sess.WinnerID != nil {
		t.Fatalf("premature winner: %v", *sess.WinnerID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSubmitFinalStatsSecondCallerFinalizes(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	// Inviter already submitted 5000m; invitee reports 4800m.
	withInviterFinal := sessionRows().AddRow(
		"session-1", "inviter-1", "invitee-1", StatusActive, time.Now(), nil, tp(time.Now()), nil,
		fp(5000), i64p(1800), nil, nil, nil, nil, nil, nil, nil,
	)
	completed := sessionRows().AddRow(
		"session-1", "inviter-1", "invitee-1", StatusCompleted, time.Now(), nil, tp(time.Now()), tp(time.Now()),
		fp(5000), i64p(1800), nil, nil, fp(4800), i64p(1840), nil, nil, sp("inviter-1"),
	)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM run_sessions WHERE id=\$1`).
		WithArgs("session-1").
		WillReturnRows(withInviterFinal)
	mock.ExpectExec(`UPDATE run_sessions`).
		WithArgs("session-1", 4800.0, int64(1840), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`UPDATE run_sessions`).
		WithArgs("session-1", StatusCompleted, pgxmock.AnyArg(), sp("inviter-1")).
		WillReturnRows(completed)
	mock.ExpectCommit()

	sess, err := svc.SubmitFinalStats(context.Background(), "session-1", "invitee-1",
		FinalStatsInput{DistanceM: 4800, DurationSec: 1840})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sess.Status != StatusCompleted {
		t.Fatalf("second submission must complete the session, got %s", sess.Status)
	}
	if sess.WinnerID == nil || *sess.WinnerID != "inviter-1" {
		t.Fatalf("unexpected winner: %v", sess.WinnerID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSubmitFinalStatsTie(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	withInviterFinal := sessionRows().AddRow(
		"session-1", "inviter-1", "invitee-1", StatusActive, time.Now(), nil, tp(time.Now()), nil,
		fp(5000), i64p(1800), nil, nil, nil, nil, nil, nil, nil,
	)
	completed := sessionRows().AddRow(
		"session-1", "inviter-1", "invitee-1", StatusCompleted, time.Now(), nil, tp(time.Now()), tp(time.Now()),
		fp(5000), i64p(1800), nil, nil, fp(5000), i64p(1700), nil, nil, nil,
	)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM run_sessions WHERE id=\$1`).
		WithArgs("session-1").
		WillReturnRows(withInviterFinal)
	mock.ExpectExec(`UPDATE run_sessions`).
		WithArgs("session-1", 5000.0, int64(1700), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`UPDATE run_sessions`).
		WithArgs("session-1", StatusCompleted, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(completed)
	mock.ExpectCommit()

	sess, err := svc.SubmitFinalStats(context.Background(), "session-1", "invitee-1",
		FinalStatsInput{DistanceM: 5000, DurationSec: 1700})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sess.WinnerID != nil {
		t.Fatalf("equal distances must not produce a winner")
	}
}

func TestSubmitFinalStatsIdempotentResubmission(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	completed := func() *pgxmock.Rows {
		return sessionRows().AddRow(
			"session-1", "inviter-1", "invitee-1", StatusCompleted, time.Now(), nil, tp(time.Now()), tp(time.Now()),
			fp(5000), i64p(1800), nil, nil, fp(4800), i64p(1840), nil, nil, sp("inviter-1"),
		)
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM run_sessions WHERE id=\$1`).
		WithArgs("session-1").
		WillReturnRows(completed())
	mock.ExpectExec(`UPDATE run_sessions`).
		WithArgs("session-1", 5000.0, int64(1800), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`UPDATE run_sessions`).
		WithArgs("session-1", StatusCompleted, pgxmock.AnyArg(), sp("inviter-1")).
		WillReturnRows(completed())
	mock.ExpectCommit()

	sess, err := svc.SubmitFinalStats(context.Background(), "session-1", "inviter-1",
		FinalStatsInput{DistanceM: 5000, DurationSec: 1800})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if sess.Status != StatusCompleted || sess.WinnerID == nil || *sess.WinnerID != "inviter-1" {
		t.Fatalf("resubmission changed the outcome: %+v", sess)
	}
}

func TestSubmitFinalStatsPending(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM run_sessions WHERE id=\$1`).
		WithArgs("session-1").
		WillReturnRows(pendingRow("session-1", time.Now().Add(time.Minute)))
	mock.ExpectRollback()

	_, err := svc.SubmitFinalStats(context.Background(), "session-1", "inviter-1",
		FinalStatsInput{DistanceM: 5000, DurationSec: 1800})
	if !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("expected ErrSessionNotActive, got %v", err)
	}
}

func TestSubmitFinalStatsCancelled(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	cancelled := sessionRows().AddRow(
		"session-1", "inviter-1", "invitee-1", StatusCancelled, time.Now(), nil, tp(time.Now()), tp(time.Now()),
		nil, nil, nil, nil, nil, nil, nil, nil, nil,
	)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM run_sessions WHERE id=\$1`).
		WithArgs("session-1").
		WillReturnRows(cancelled)
	mock.ExpectRollback()

	_, err := svc.SubmitFinalStats(context.Background(), "session-1", "inviter-1",
		FinalStatsInput{DistanceM: 5000, DurationSec: 1800})
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestActiveSessionNone(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	mock.ExpectQuery(`FROM run_sessions`).
		WithArgs("user-1", StatusActive).
		WillReturnRows(sessionRows())

	_, err := svc.ActiveSession(context.Background(), "user-1")
	if !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestActiveSessionFound(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	mock.ExpectQuery(`FROM run_sessions`).
		WithArgs("inviter-1", StatusActive).
		WillReturnRows(activeRow("session-1"))

	sess, err := svc.ActiveSession(context.Background(), "inviter-1")
	if err != nil {
		t.Fatalf("active session: %v", err)
	}
	if sess.ID != "session-1" {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestWinner(t *testing.T) {
	base := Session{InviterID: "a", InviteeID: "b"}

	cases := []struct {
		name string
		a, b *float64
		want *string
	}{
		{"inviter farther", fp(5000), fp(4800), sp("a")},
		{"invitee farther", fp(4800), fp(5000), sp("b")},
		{"tie", fp(5000), fp(5000), nil},
		{"missing side", fp(5000), nil, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sess := base
			sess.InviterFinal.DistanceM = tc.a
			sess.InviteeFinal.DistanceM = tc.b
			got := winner(sess)
			switch {
			case tc.want == nil && got != nil:
				t.Fatalf("expected no winner, got %s", *got)
			case tc.want != nil && (got == nil || *got != *tc.want):
				t.Fatalf("expected winner %s, got %v", *tc.want, got)
			}
		})
	}
}
