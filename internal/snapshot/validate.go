package snapshot

import (
	"errors"
	"time"
)

// Plausibility rejections. Deterministic and side-effect-free: a rejected
// write leaves the stored snapshot exactly as it was.
var (
	ErrImplausiblePace      = errors.New("reported pace is faster than the world-record floor")
	ErrImplausibleHeartRate = errors.New("reported heart rate exceeds the physiological ceiling")
	ErrImplausibleSpeed     = errors.New("implied speed since the previous sample exceeds the ceiling")
	ErrWriteTooSoon         = errors.New("snapshot writes are rate-limited; retry at the next interval")
	ErrStaleSequence        = errors.New("sequence number is not greater than the last accepted sample")

	ErrSnapshotNotFound = errors.New("no snapshot recorded")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionNotActive = errors.New("session is not active")
	ErrNotParticipant   = errors.New("caller is not a participant of this session")
)

// Rules are the tunable plausibility bounds; see config for the defaults
// (120 s/km pace floor, 250 bpm, 60 km/h, 10 s spacing).
type Rules struct {
	MinInterval     time.Duration
	MaxSpeedKmh     float64
	MinPaceSecPerKm float64
	MaxHeartRateBpm int
}

func (r Rules) checkSample(s Sample) error {
	if s.PaceSecPerKm > 0 && s.PaceSecPerKm < r.MinPaceSecPerKm {
		return ErrImplausiblePace
	}
	if s.HeartRateBpm > r.MaxHeartRateBpm {
		return ErrImplausibleHeartRate
	}
	return nil
}

// checkAgainstPrevious catches distance jumps a single-sample check would
// miss: the implied average speed since the previous persisted sample must
// stay under the ceiling.
func (r Rules) checkAgainstPrevious(prev Snapshot, s Sample, now time.Time) error {
	if s.Seq <= prev.Seq {
		return ErrStaleSequence
	}
	elapsed := now.Sub(prev.ServerReceivedAt)
	if elapsed < r.MinInterval {
		return ErrWriteTooSoon
	}
	deltaM := s.DistanceM - prev.DistanceM
	if deltaM > 0 && elapsed > 0 {
		speedKmh := deltaM / elapsed.Seconds() * 3.6
		if speedKmh > r.MaxSpeedKmh {
			return ErrImplausibleSpeed
		}
	}
	return nil
}
