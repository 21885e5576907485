package client

import (
	"context"

	"backend-virtualrun/internal/route"
	"backend-virtualrun/internal/session"
	"backend-virtualrun/internal/snapshot"
	"backend-virtualrun/internal/stream"
)

// Backend is everything the client engine needs from the synchronization
// backend. Implementations wrap whatever transport the app uses; the
// engine only depends on this contract.
type Backend interface {
	CreateInvite(ctx context.Context, inviterID, inviteeID string) (session.Session, error)
	AcceptInvite(ctx context.Context, sessionID, callerID string) (session.Session, error)
	DeclineOrCancel(ctx context.Context, sessionID, callerID string) (session.Session, error)
	SubmitFinalStats(ctx context.Context, sessionID, callerID string, stats session.FinalStatsInput) (session.Session, error)
	FetchSession(ctx context.Context, sessionID string) (session.Session, error)
	FetchActiveSession(ctx context.Context, callerID string) (session.Session, error)

	UpsertSnapshot(ctx context.Context, sessionID, participantID string, s snapshot.Sample) (snapshot.Snapshot, error)
	PublishBroadcast(ctx context.Context, sessionID, participantID string, s snapshot.Sample) error
	LatestSnapshot(ctx context.Context, sessionID, participantID string) (snapshot.Snapshot, error)

	UploadRoute(ctx context.Context, sessionID, participantID string, points []route.Point) (route.Route, error)
	DownloadRoute(ctx context.Context, sessionID, participantID string) (route.Route, error)

	// Subscribe attaches to the session's broadcast channel. The returned
	// stop func detaches and closes the channel.
	Subscribe(ctx context.Context, sessionID string) (<-chan stream.Envelope, func(), error)
}
