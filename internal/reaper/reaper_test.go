package reaper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func newReaper(mock pgxmock.PgxPoolIface) *Reaper {
	return New(mock, nil, zerolog.Nop(), time.Minute, time.Hour, 6*time.Hour, time.Hour)
}

func TestExpirePending(t *testing.T) {
	mock := newMock(t)
	r := newReaper(mock)

	mock.ExpectQuery(`UPDATE run_sessions`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("session-1").AddRow("session-2"))

	n, err := r.ExpirePending(context.Background())
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 expired, got %d", n)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExpirePendingNone(t *testing.T) {
	mock := newMock(t)
	r := newReaper(mock)

	mock.ExpectQuery(`UPDATE run_sessions`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	n, err := r.ExpirePending(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected clean empty sweep, got n=%d err=%v", n, err)
	}
}

func TestCancelStale(t *testing.T) {
	mock := newMock(t)
	r := newReaper(mock)

	mock.ExpectQuery(`UPDATE run_sessions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("session-9"))

	n, err := r.CancelStale(context.Background())
	if err != nil {
		t.Fatalf("cancel stale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 cancelled, got %d", n)
	}
}

func TestSweepErrorPropagates(t *testing.T) {
	mock := newMock(t)
	r := newReaper(mock)

	mock.ExpectQuery(`UPDATE run_sessions`).
		WillReturnError(errors.New("db down"))

	if _, err := r.ExpirePending(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	mock := newMock(t)
	r := New(mock, nil, zerolog.Nop(), 5*time.Millisecond, time.Hour, 6*time.Hour, time.Hour)

	mock.ExpectQuery(`UPDATE run_sessions`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("reaper did not stop on cancel")
	}
}
