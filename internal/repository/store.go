// Package repository defines the storage interface and its SQLite implementation.
package repository

import (
	"context"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
)

// Store defines the interface for data persistence.
type Store interface {
	// Initialize creates or upgrades the schema. It is safe to call on every start.
	Initialize(ctx context.Context) error

	// Session operations
	CreateSession(ctx context.Context, title string, modelID *string) (*domain.Session, error)
	GetSession(ctx context.Context, sessionID int64) (*domain.SessionRecord, error)
	DeleteSession(ctx context.Context, sessionID int64) error
	LoadAllSessions(ctx context.Context) ([]domain.SessionRecord, error)
	ImportSession(ctx context.Context, title string, modelID *string, messages []domain.Message) (*domain.SessionRecord, error)

	// Message operations
	AppendMessage(ctx context.Context, sessionID int64, role domain.Role, content string, modelID *string) (*domain.Message, error)
	ListMessages(ctx context.Context, sessionID int64) ([]domain.Message, error)

	Close() error
}
