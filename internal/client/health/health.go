package health

import (
	"context"
	"time"

	"backend-virtualrun/internal/route"
)

// Activity is a finished workout as recorded by the device's health
// platform. Its route typically syncs later than the record itself.
type Activity struct {
	ID              string
	StartedAt       time.Time
	DistanceM       float64
	DurationSec     int64
	AvgPaceSecPerKm float64
	AvgHeartRateBpm int
}

// Platform is the device-local health store. Both calls are fallible and
// may legitimately come back empty while the platform is still syncing.
type Platform interface {
	// FindRecentRunningActivity returns the newest running activity that
	// started within the given window, if one has synced yet.
	FindRecentRunningActivity(ctx context.Context, within time.Duration) (Activity, bool, error)

	// FetchRoute returns the activity's recorded polyline. An empty slice
	// means the route has not materialized yet, not an error.
	FetchRoute(ctx context.Context, activityID string) ([]route.Point, error)
}
