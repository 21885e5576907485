package session

import "time"

const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Session is one virtual-run pairing between two runners.
type Session struct {
	ID        string     `json:"id"`
	InviterID string     `json:"inviter_id"`
	InviteeID string     `json:"invitee_id"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	InviterFinal FinalStats `json:"inviter_final"`
	InviteeFinal FinalStats `json:"invitee_final"`

	// WinnerID is nil until completion, and stays nil on a tie.
	WinnerID *string `json:"winner_id,omitempty"`
}

// FinalStats holds one participant's authoritative end-of-run numbers.
// Nil duration means the participant has not submitted yet.
type FinalStats struct {
	DistanceM    *float64 `json:"distance_m,omitempty"`
	DurationSec  *int64   `json:"duration_sec,omitempty"`
	AvgPaceSec   *float64 `json:"avg_pace_sec,omitempty"`
	AvgHeartRate *int     `json:"avg_heart_rate,omitempty"`
}

// FinalStatsInput is what a participant submits when their run ends.
type FinalStatsInput struct {
	DistanceM    float64  `json:"distance_m" validate:"gte=0"`
	DurationSec  int64    `json:"duration_sec" validate:"gt=0"`
	AvgPaceSec   *float64 `json:"avg_pace_sec" validate:"omitempty,gte=0"`
	AvgHeartRate *int     `json:"avg_heart_rate" validate:"omitempty,gt=0"`
}

// Submitted reports whether this participant's final stats are in.
func (f FinalStats) Submitted() bool {
	return f.DurationSec != nil
}
