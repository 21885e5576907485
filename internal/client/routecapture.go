package client

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"backend-virtualrun/internal/client/health"
	"backend-virtualrun/internal/client/retry"
	"backend-virtualrun/internal/route"
	"backend-virtualrun/internal/shared/geo"
)

const (
	// StateCaptured means a polyline was obtained, though upload may
	// still have failed.
	StateCaptured = "captured"
	// StateNoRoute is the terminal user-visible state after every capture
	// or poll attempt ran out. It is not an error; the run's correctness
	// does not depend on routes.
	StateNoRoute = "no_route"
)

// Capture runs the best-effort route exchange: pull the polyline from the
// device's health platform, push it to the backend, and poll for the
// partner's copy. Every loop is bounded; exhaustion degrades to
// StateNoRoute instead of failing the run.
type Capture struct {
	backend  Backend
	platform health.Platform
	log      zerolog.Logger

	discover    retry.Policy
	routeWait   retry.Policy
	partnerPoll retry.Policy
}

func NewCapture(backend Backend, platform health.Platform, log zerolog.Logger) *Capture {
	return &Capture{
		backend:  backend,
		platform: platform,
		log:      log,

		// Route data syncs slower than the activity record itself, so the
		// discovery and wait loops run for minutes, not seconds.
		discover:    retry.Policy{Attempts: 18, Interval: 10 * time.Second, Ceiling: 3 * time.Minute},
		routeWait:   retry.Policy{Attempts: 31, Interval: 10 * time.Second, Ceiling: 5 * time.Minute},
		partnerPoll: retry.Policy{Attempts: 36, Interval: 10 * time.Second},
	}
}

// CaptureOwn finds the just-finished activity, waits for its polyline, and
// uploads it. Neither a capture exhaustion nor an upload failure blocks:
// the previously uploaded copy is served if one exists, the locally
// captured one otherwise.
func (c *Capture) CaptureOwn(ctx context.Context, sessionID, selfID string, within time.Duration) (route.Route, string, error) {
	var activity health.Activity
	err := c.discover.Do(ctx, func(ctx context.Context) (bool, error) {
		a, found, err := c.platform.FindRecentRunningActivity(ctx, within)
		if err != nil {
			return false, err
		}
		if !found {
			return false, nil
		}
		activity = a
		return true, nil
	})
	if err != nil {
		return c.storedOrNoRoute(ctx, sessionID, selfID, err)
	}

	var points []route.Point
	err = c.routeWait.Do(ctx, func(ctx context.Context) (bool, error) {
		p, err := c.platform.FetchRoute(ctx, activity.ID)
		if err != nil {
			return false, err
		}
		if len(p) == 0 {
			return false, nil
		}
		points = p
		return true, nil
	})
	if err != nil {
		return c.storedOrNoRoute(ctx, sessionID, selfID, err)
	}

	c.log.Info().
		Str("activity", activity.ID).
		Int("points", len(points)).
		Float64("distance_m", polylineDistanceM(points)).
		Msg("route captured")

	uploaded, err := c.backend.UploadRoute(ctx, sessionID, selfID, points)
	if err == nil {
		return uploaded, StateCaptured, nil
	}
	c.log.Warn().Err(err).Msg("route upload failed")

	if prev, derr := c.backend.DownloadRoute(ctx, sessionID, selfID); derr == nil {
		return prev, StateCaptured, nil
	}
	local := route.Route{SessionID: sessionID, ParticipantID: selfID, Points: points}
	return local, StateCaptured, nil
}

// Retry re-runs the full capture on user demand after an earlier
// StateNoRoute outcome.
func (c *Capture) Retry(ctx context.Context, sessionID, selfID string, within time.Duration) (route.Route, string, error) {
	return c.CaptureOwn(ctx, sessionID, selfID, within)
}

// PartnerRoute polls for the partner's uploaded copy, stopping as soon as
// it appears.
func (c *Capture) PartnerRoute(ctx context.Context, sessionID, partnerID string) (route.Route, string, error) {
	var found route.Route
	err := c.partnerPoll.Do(ctx, func(ctx context.Context) (bool, error) {
		r, err := c.backend.DownloadRoute(ctx, sessionID, partnerID)
		if err != nil {
			if errors.Is(err, route.ErrRouteNotFound) {
				return false, nil
			}
			return false, err
		}
		found = r
		return true, nil
	})
	if err != nil {
		return c.noRoute(err)
	}
	return found, StateCaptured, nil
}

// storedOrNoRoute handles a capture loop running out: a copy uploaded on an
// earlier attempt (or an earlier install) still counts as this
// participant's route.
func (c *Capture) storedOrNoRoute(ctx context.Context, sessionID, selfID string, err error) (route.Route, string, error) {
	if !errors.Is(err, retry.ErrExhausted) {
		return route.Route{}, StateNoRoute, err
	}
	c.log.Warn().Err(err).Msg("route capture exhausted")

	if prev, derr := c.backend.DownloadRoute(ctx, sessionID, selfID); derr == nil {
		return prev, StateCaptured, nil
	}
	return route.Route{}, StateNoRoute, nil
}

func (c *Capture) noRoute(err error) (route.Route, string, error) {
	if errors.Is(err, retry.ErrExhausted) {
		c.log.Warn().Err(err).Msg("route capture exhausted")
		return route.Route{}, StateNoRoute, nil
	}
	return route.Route{}, StateNoRoute, err
}

func polylineDistanceM(points []route.Point) float64 {
	var km float64
	for i := 1; i < len(points); i++ {
		km += geo.HaversineKm(points[i-1].Lat, points[i-1].Lng, points[i].Lat, points[i].Lng)
	}
	return km * 1000
}
