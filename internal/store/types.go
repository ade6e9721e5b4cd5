package store

import (
	"context"
	"errors"
	"time"

	"github.com/healthsphere/healthsphere/internal/conversation"
)

// ErrNotFound is returned when a session id has no record.
var ErrNotFound = errors.New("session not found")

// SessionRecord is a persisted consultation session.
type SessionRecord struct {
	SessionID    string              `json:"session_id"`
	CreatedBy    string              `json:"created_by"`
	Notes        string              `json:"notes"`
	SpecialistID string              `json:"specialist_id"`
	Conversation []conversation.Turn `json:"conversation"`
	Report       string              `json:"report"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Store persists consultation sessions, their transcripts and reports.
type Store interface {
	CreateSession(ctx context.Context, record SessionRecord) error
	GetSession(ctx context.Context, sessionID string) (SessionRecord, error)
	ListSessions(ctx context.Context, createdBy string, limit int) ([]SessionRecord, error)
	SaveConversation(ctx context.Context, sessionID string, turns []conversation.Turn) error
	SaveReport(ctx context.Context, sessionID, report string) error
	Close() error
}
