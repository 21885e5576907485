package client

import (
	"context"
	"time"

	"backend-virtualrun/internal/route"
	"backend-virtualrun/internal/session"
	"backend-virtualrun/internal/snapshot"
	"backend-virtualrun/internal/stream"
)

// fakeBackend lets each test wire just the calls it cares about.
type fakeBackend struct {
	createInvite     func(ctx context.Context, inviterID, inviteeID string) (session.Session, error)
	acceptInvite     func(ctx context.Context, sessionID, callerID string) (session.Session, error)
	declineOrCancel  func(ctx context.Context, sessionID, callerID string) (session.Session, error)
	submitFinalStats func(ctx context.Context, sessionID, callerID string, stats session.FinalStatsInput) (session.Session, error)
	fetchSession     func(ctx context.Context, sessionID string) (session.Session, error)
	fetchActive      func(ctx context.Context, callerID string) (session.Session, error)
	upsertSnapshot   func(ctx context.Context, sessionID, participantID string, s snapshot.Sample) (snapshot.Snapshot, error)
	publishBroadcast func(ctx context.Context, sessionID, participantID string, s snapshot.Sample) error
	latestSnapshot   func(ctx context.Context, sessionID, participantID string) (snapshot.Snapshot, error)
	uploadRoute      func(ctx context.Context, sessionID, participantID string, points []route.Point) (route.Route, error)
	downloadRoute    func(ctx context.Context, sessionID, participantID string) (route.Route, error)
	subscribe        func(ctx context.Context, sessionID string) (<-chan stream.Envelope, func(), error)
}

func (f *fakeBackend) CreateInvite(ctx context.Context, inviterID, inviteeID string) (session.Session, error) {
	return f.createInvite(ctx, inviterID, inviteeID)
}

func (f *fakeBackend) AcceptInvite(ctx context.Context, sessionID, callerID string) (session.Session, error) {
	return f.acceptInvite(ctx, sessionID, callerID)
}

func (f *fakeBackend) DeclineOrCancel(ctx context.Context, sessionID, callerID string) (session.Session, error) {
	return f.declineOrCancel(ctx, sessionID, callerID)
}

func (f *fakeBackend) SubmitFinalStats(ctx context.Context, sessionID, callerID string, stats session.FinalStatsInput) (session.Session, error) {
	return f.submitFinalStats(ctx, sessionID, callerID, stats)
}

func (f *fakeBackend) FetchSession(ctx context.Context, sessionID string) (session.Session, error) {
	return f.fetchSession(ctx, sessionID)
}

func (f *fakeBackend) FetchActiveSession(ctx context.Context, callerID string) (session.Session, error) {
	return f.fetchActive(ctx, callerID)
}

func (f *fakeBackend) UpsertSnapshot(ctx context.Context, sessionID, participantID string, s snapshot.Sample) (snapshot.Snapshot, error) {
	return f.upsertSnapshot(ctx, sessionID, participantID, s)
}

func (f *fakeBackend) PublishBroadcast(ctx context.Context, sessionID, participantID string, s snapshot.Sample) error {
	return f.publishBroadcast(ctx, sessionID, participantID, s)
}

func (f *fakeBackend) LatestSnapshot(ctx context.Context, sessionID, participantID string) (snapshot.Snapshot, error) {
	return f.latestSnapshot(ctx, sessionID, participantID)
}

func (f *fakeBackend) UploadRoute(ctx context.Context, sessionID, participantID string, points []route.Point) (route.Route, error) {
	return f.uploadRoute(ctx, sessionID, participantID, points)
}

func (f *fakeBackend) DownloadRoute(ctx context.Context, sessionID, participantID string) (route.Route, error) {
	return f.downloadRoute(ctx, sessionID, participantID)
}

func (f *fakeBackend) Subscribe(ctx context.Context, sessionID string) (<-chan stream.Envelope, func(), error) {
	return f.subscribe(ctx, sessionID)
}

func activeSession() session.Session {
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return session.Session{
		ID:        "session-1",
		InviterID: "inviter-1",
		InviteeID: "invitee-1",
		Status:    session.StatusActive,
		StartedAt: &started,
	}
}
