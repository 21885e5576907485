package client

import (
	"sync"

	"backend-virtualrun/internal/session"
	"backend-virtualrun/internal/snapshot"
)

// RunContext is the client-local state of one virtual run. Each run gets
// its own instance; nothing here is shared between runs. It merges samples
// from both delivery paths, keeping only the freshest accepted one per
// participant.
type RunContext struct {
	Session   session.Session
	SelfID    string
	PartnerID string

	mu       sync.Mutex
	latest   map[string]snapshot.Sample
	done     chan struct{}
	tornDown bool
}

func NewRunContext(sess session.Session, selfID string) *RunContext {
	partnerID := sess.InviterID
	if selfID == sess.InviterID {
		partnerID = sess.InviteeID
	}
	return &RunContext{
		Session:   sess,
		SelfID:    selfID,
		PartnerID: partnerID,
		latest:    map[string]snapshot.Sample{},
		done:      make(chan struct{}),
	}
}

// Accept merges a sample if its sequence number is strictly greater than
// the one already held for that participant. Duplicates and out-of-order
// deliveries fall out here.
func (rc *RunContext) Accept(participantID string, s snapshot.Sample) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if prev, ok := rc.latest[participantID]; ok && s.Seq <= prev.Seq {
		return false
	}
	rc.latest[participantID] = s
	return true
}

// Latest returns the freshest accepted sample for a participant.
func (rc *RunContext) Latest(participantID string) (snapshot.Sample, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	s, ok := rc.latest[participantID]
	return s, ok
}

// SetStatus records the last session status the client observed.
func (rc *RunContext) SetStatus(status string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.Session.Status = status
}

// Status returns the last observed session status.
func (rc *RunContext) Status() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.Session.Status
}

// Teardown marks the run finished and releases everyone waiting on Done.
// Safe to call more than once.
func (rc *RunContext) Teardown() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.tornDown {
		return
	}
	rc.tornDown = true
	close(rc.done)
}

// Done is closed once the run has been torn down.
func (rc *RunContext) Done() <-chan struct{} {
	return rc.done
}
