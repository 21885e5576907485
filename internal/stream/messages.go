package stream

import (
	"encoding/json"
	"time"
)

const (
	// EnvelopeSample carries one live stat sample from a participant.
	EnvelopeSample = "sample"
	// EnvelopeStatus announces a session state transition.
	EnvelopeStatus = "status"
)

// Envelope is the wire format on the broadcast channel. Delivery is
// best-effort and unordered across participants; receivers must filter
// samples by Seq per participant.
type Envelope struct {
	Type          string          `json:"type"`
	SessionID     string          `json:"session_id"`
	ParticipantID string          `json:"participant_id,omitempty"`
	Seq           int64           `json:"seq,omitempty"`
	Durable       bool            `json:"durable,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// SamplePayload mirrors the telemetry sampler output.
type SamplePayload struct {
	DistanceM       float64   `json:"distance_m"`
	DurationSec     int64     `json:"duration_sec"`
	PaceSecPerKm    float64   `json:"pace_sec_per_km"`
	HeartRateBpm    int       `json:"heart_rate_bpm"`
	CaloriesKcal    float64   `json:"calories_kcal"`
	Paused          bool      `json:"paused"`
	ClientRecordedAt time.Time `json:"client_recorded_at"`
}

// StatusPayload announces the session status observed by the backend.
type StatusPayload struct {
	Status string `json:"status"`
}

func SampleEnvelope(sessionID, participantID string, seq int64, durable bool, sample SamplePayload) ([]byte, error) {
	body, err := json.Marshal(sample)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Type:          EnvelopeSample,
		SessionID:     sessionID,
		ParticipantID: participantID,
		Seq:           seq,
		Durable:       durable,
		Payload:       body,
	})
}

func StatusEnvelope(sessionID, status string) ([]byte, error) {
	body, err := json.Marshal(StatusPayload{Status: status})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Type:      EnvelopeStatus,
		SessionID: sessionID,
		Payload:   body,
	})
}
