package reaper

import (
	"context"
	"time"

	"backend-virtualrun/internal/db"
	"backend-virtualrun/internal/eventlog"

	"github.com/rs/zerolog"
)

var nowFn = time.Now

// Reaper closes out sessions no client will ever finish: unanswered invites
// past their expiry, and active runs where both devices went silent. It is
// the safety net the two-phase completion protocol cannot provide on its own.
type Reaper struct {
	db     db.Querier
	events *eventlog.Recorder
	log    zerolog.Logger

	pendingInterval time.Duration
	staleInterval   time.Duration
	staleCeiling    time.Duration
	quietWindow     time.Duration
}

func New(q db.Querier, events *eventlog.Recorder, log zerolog.Logger,
	pendingInterval, staleInterval, staleCeiling, quietWindow time.Duration) *Reaper {
	return &Reaper{
		db:              q,
		events:          events,
		log:             log,
		pendingInterval: pendingInterval,
		staleInterval:   staleInterval,
		staleCeiling:    staleCeiling,
		quietWindow:     quietWindow,
	}
}

// ExpirePending cancels every pending session whose acceptance window has
// passed, regardless of client activity.
func (r *Reaper) ExpirePending(ctx context.Context) (int, error) {
	now := nowFn()
	rows, err := r.db.Query(ctx, `
		UPDATE run_sessions
		SET status='cancelled', expires_at=NULL, ended_at=$1
		WHERE status='pending' AND expires_at < $1
		RETURNING id
	`, now)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var expired []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		expired = append(expired, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range expired {
		r.events.Append(ctx, id, "", "invite_expired", nil)
	}
	return len(expired), nil
}

// CancelStale cancels active sessions older than the ceiling with no
// snapshot write inside the quiet window.
func (r *Reaper) CancelStale(ctx context.Context) (int, error) {
	now := nowFn()
	rows, err := r.db.Query(ctx, `
		UPDATE run_sessions
		SET status='cancelled', ended_at=$1
		WHERE status='active'
		  AND started_at < $2
		  AND NOT EXISTS (
			SELECT 1 FROM run_snapshots sn
			WHERE sn.session_id = run_sessions.id
			  AND sn.server_received_at > $3
		  )
		RETURNING id
	`, now, now.Add(-r.staleCeiling), now.Add(-r.quietWindow))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		stale = append(stale, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range stale {
		r.events.Append(ctx, id, "", "session_reaped", nil)
	}
	return len(stale), nil
}

// Run sweeps until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	pending := time.NewTicker(r.pendingInterval)
	stale := time.NewTicker(r.staleInterval)
	defer pending.Stop()
	defer stale.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pending.C:
			if n, err := r.ExpirePending(ctx); err != nil {
				r.log.Error().Err(err).Msg("pending sweep failed")
			} else if n > 0 {
				r.log.Info().Int("expired", n).Msg("pending invites expired")
			}
		case <-stale.C:
			if n, err := r.CancelStale(ctx); err != nil {
				r.log.Error().Err(err).Msg("stale sweep failed")
			} else if n > 0 {
				r.log.Info().Int("cancelled", n).Msg("stale sessions cancelled")
			}
		}
	}
}
