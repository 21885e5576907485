package client

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"backend-virtualrun/internal/session"
	"backend-virtualrun/internal/snapshot"
	"backend-virtualrun/internal/stream"
)

var newTickerFn = func(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Engine drives one participant's side of an active run: it samples the
// device, broadcasts every tick, persists on the durable cadence, and folds
// incoming envelopes into the run context. It stops itself when it observes
// a terminal session status.
type Engine struct {
	backend Backend
	run     *RunContext
	sampler func() snapshot.Sample
	log     zerolog.Logger

	sampleInterval time.Duration
	durableCadence time.Duration
}

func NewEngine(backend Backend, run *RunContext, sampler func() snapshot.Sample,
	sampleInterval, durableCadence time.Duration, log zerolog.Logger) *Engine {
	return &Engine{
		backend:        backend,
		run:            run,
		sampler:        sampler,
		log:            log,
		sampleInterval: sampleInterval,
		durableCadence: durableCadence,
	}
}

// Run loops until the session reaches a terminal state or ctx is cancelled.
// The run context is always torn down on the way out.
func (e *Engine) Run(ctx context.Context) error {
	defer e.run.Teardown()

	envelopes, unsubscribe, err := e.backend.Subscribe(ctx, e.run.Session.ID)
	if err != nil {
		return err
	}
	defer unsubscribe()

	sampleC, stopSample := newTickerFn(e.sampleInterval)
	defer stopSample()
	durableC, stopDurable := newTickerFn(e.durableCadence)
	defer stopDurable()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-e.run.Done():
			return nil

		case env, ok := <-envelopes:
			if !ok {
				return nil
			}
			if e.handleEnvelope(env) {
				return nil
			}

		case <-sampleC:
			s := e.sampler()
			e.run.Accept(e.run.SelfID, s)
			if err := e.backend.PublishBroadcast(ctx, e.run.Session.ID, e.run.SelfID, s); err != nil {
				e.log.Warn().Err(err).Msg("broadcast publish failed")
			}

		case <-durableC:
			if e.persistLatest(ctx) {
				return nil
			}
		}
	}
}

// handleEnvelope folds one broadcast message into the run context and
// reports whether a terminal status was observed.
func (e *Engine) handleEnvelope(env stream.Envelope) bool {
	switch env.Type {
	case stream.EnvelopeSample:
		if env.ParticipantID == e.run.SelfID {
			return false
		}
		var p stream.SamplePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			e.log.Warn().Err(err).Msg("malformed sample envelope")
			return false
		}
		e.run.Accept(env.ParticipantID, snapshot.Sample{
			DistanceM:        p.DistanceM,
			DurationSec:      p.DurationSec,
			PaceSecPerKm:     p.PaceSecPerKm,
			HeartRateBpm:     p.HeartRateBpm,
			CaloriesKcal:     p.CaloriesKcal,
			Seq:              env.Seq,
			Paused:           p.Paused,
			ClientRecordedAt: p.ClientRecordedAt,
		})
		return false

	case stream.EnvelopeStatus:
		var p stream.StatusPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			e.log.Warn().Err(err).Msg("malformed status envelope")
			return false
		}
		e.run.SetStatus(p.Status)
		return terminalStatus(p.Status)
	}
	return false
}

// persistLatest writes the freshest own sample to the durable store and
// reports whether the session turned out to be closed. A spacing rejection
// is dropped; the next cadence tick retries naturally.
func (e *Engine) persistLatest(ctx context.Context) bool {
	s, ok := e.run.Latest(e.run.SelfID)
	if !ok {
		return false
	}

	_, err := e.backend.UpsertSnapshot(ctx, e.run.Session.ID, e.run.SelfID, s)
	switch {
	case err == nil:
		return false
	case errors.Is(err, snapshot.ErrWriteTooSoon), errors.Is(err, snapshot.ErrStaleSequence):
		return false
	case errors.Is(err, snapshot.ErrSessionNotActive), errors.Is(err, snapshot.ErrSessionNotFound):
		if sess, ferr := e.backend.FetchSession(ctx, e.run.Session.ID); ferr == nil {
			e.run.SetStatus(sess.Status)
			if terminalStatus(sess.Status) {
				return true
			}
		}
		return false
	default:
		e.log.Warn().Err(err).Msg("durable snapshot write failed")
		return false
	}
}

// Reconnect re-seeds the run after a connectivity gap. If the session
// already reached a terminal state the run is torn down; otherwise the
// partner's view is restored from their last durable snapshot.
func (e *Engine) Reconnect(ctx context.Context) error {
	sess, err := e.backend.FetchActiveSession(ctx, e.run.SelfID)
	if err != nil {
		if errors.Is(err, session.ErrNoActiveSession) {
			if s, ferr := e.backend.FetchSession(ctx, e.run.Session.ID); ferr == nil {
				e.run.SetStatus(s.Status)
			}
			e.run.Teardown()
			return nil
		}
		return err
	}
	if sess.ID != e.run.Session.ID {
		e.run.Teardown()
		return nil
	}

	snap, err := e.backend.LatestSnapshot(ctx, sess.ID, e.run.PartnerID)
	if err != nil {
		if errors.Is(err, snapshot.ErrSnapshotNotFound) {
			return nil
		}
		return err
	}
	e.run.Accept(e.run.PartnerID, snapshot.Sample{
		DistanceM:        snap.DistanceM,
		DurationSec:      snap.DurationSec,
		PaceSecPerKm:     snap.PaceSecPerKm,
		HeartRateBpm:     snap.HeartRateBpm,
		CaloriesKcal:     snap.CaloriesKcal,
		Seq:              snap.Seq,
		Paused:           snap.Paused,
		ClientRecordedAt: snap.ClientRecordedAt,
	})
	return nil
}

func terminalStatus(status string) bool {
	return status == session.StatusCompleted || status == session.StatusCancelled
}
