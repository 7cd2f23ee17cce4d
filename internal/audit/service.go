package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"club-dashboard/pkg/logger"
)

// Repository is the persistence contract for audit events. Append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records session lifecycle events.
//
// Audit is best-effort: the Record helpers log failures and never return
// them, so a broken audit sink cannot block login, refresh or logout.
// A nil *Service records nothing.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.SessionID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record appends e, logging instead of returning any failure.
func (s *Service) Record(ctx context.Context, e Event) {
	if s == nil {
		return
	}
	if err := s.Append(ctx, e); err != nil {
		logger.From(ctx).Warn("audit append failed", "type", string(e.Type), "error", err)
	}
}

func (s *Service) RecordForcedLogout(ctx context.Context, sessionID, reason string) {
	s.Record(ctx, Event{SessionID: sessionID, Type: EventTypeForcedLogout, Message: reason})
}

func (s *Service) RecordWorkspaceSelected(ctx context.Context, sessionID, userID, workspaceID string) {
	s.Record(ctx, Event{
		SessionID:   sessionID,
		Type:        EventTypeWorkspaceSelected,
		UserID:      userID,
		WorkspaceID: workspaceID,
	})
}
