package snapshot

import "time"

// Sample is one telemetry reading as reported by a client. The same shape
// travels both paths: broadcast live, persisted throttled.
type Sample struct {
	DistanceM        float64   `json:"distance_m" validate:"gte=0"`
	DurationSec      int64     `json:"duration_sec" validate:"gte=0"`
	PaceSecPerKm     float64   `json:"pace_sec_per_km" validate:"gte=0"`
	HeartRateBpm     int       `json:"heart_rate_bpm" validate:"gte=0"`
	CaloriesKcal     float64   `json:"calories_kcal" validate:"gte=0"`
	Seq              int64     `json:"seq" validate:"gt=0"`
	Paused           bool      `json:"paused"`
	ClientRecordedAt time.Time `json:"client_recorded_at"`
}

// Snapshot is the latest persisted sample for one participant in a session.
// ServerReceivedAt is stamped by the backend, never trusted from the client.
type Snapshot struct {
	SessionID        string    `json:"session_id"`
	ParticipantID    string    `json:"participant_id"`
	DistanceM        float64   `json:"distance_m"`
	DurationSec      int64     `json:"duration_sec"`
	PaceSecPerKm     float64   `json:"pace_sec_per_km"`
	HeartRateBpm     int       `json:"heart_rate_bpm"`
	CaloriesKcal     float64   `json:"calories_kcal"`
	Seq              int64     `json:"seq"`
	Paused           bool      `json:"paused"`
	ClientRecordedAt time.Time `json:"client_recorded_at"`
	ServerReceivedAt time.Time `json:"server_received_at"`
}
