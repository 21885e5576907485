package route

import (
	"context"
	"encoding/json"
	"errors"

	"backend-virtualrun/internal/db"

	"github.com/jackc/pgx/v5"
)

var ErrRouteNotFound = errors.New("no route recorded")

// Service stores route blobs keyed by (session, participant). Upload
// retries supersede the stored copy; the protocol never deletes one.
type Service struct {
	db db.Querier
}

func NewService(q db.Querier) *Service {
	return &Service{db: q}
}

func (s *Service) Upload(ctx context.Context, sessionID, participantID string, points []Point) (Route, error) {
	blob, err := json.Marshal(points)
	if err != nil {
		return Route{}, err
	}

	r := Route{SessionID: sessionID, ParticipantID: participantID, Points: points}
	row := s.db.QueryRow(ctx, `
		INSERT INTO run_routes (session_id, participant_id, points, uploaded_at)
		VALUES ($1,$2,$3, now())
		ON CONFLICT (session_id, participant_id) DO UPDATE SET
			points=EXCLUDED.points,
			uploaded_at=now()
		RETURNING uploaded_at
	`, sessionID, participantID, blob)
	if err := row.Scan(&r.UploadedAt); err != nil {
		return Route{}, err
	}
	return r, nil
}

func (s *Service) Download(ctx context.Context, sessionID, participantID string) (Route, error) {
	r := Route{SessionID: sessionID, ParticipantID: participantID}
	var blob []byte
	row := s.db.QueryRow(ctx, `
		SELECT points, uploaded_at
		FROM run_routes
		WHERE session_id=$1 AND participant_id=$2
	`, sessionID, participantID)
	if err := row.Scan(&blob, &r.UploadedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Route{}, ErrRouteNotFound
		}
		return Route{}, err
	}
	if err := json.Unmarshal(blob, &r.Points); err != nil {
		return Route{}, err
	}
	return r, nil
}
