package route

import "time"

// Point is one recorded coordinate of a participant's run, with the heart
// rate sampled at that moment.
type Point struct {
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	HeartRateBpm int       `json:"heart_rate_bpm,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// Route is the recorded polyline of one participant's run. It is exchanged
// best-effort: a missing route never blocks session completion.
type Route struct {
	SessionID     string    `json:"session_id"`
	ParticipantID string    `json:"participant_id"`
	Points        []Point   `json:"points"`
	UploadedAt    time.Time `json:"uploaded_at"`
}
