package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
	"github.com/xiaot623/gogo/chatbot/internal/logger"
)

// ExportSession builds the export document of a stored session.
func (s *Service) ExportSession(ctx context.Context, sessionID int64) (*domain.SessionExport, error) {
	rec, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return domain.NewSessionExport(*rec), nil
}

// MarshalExport renders an export document as indented JSON.
func (s *Service) MarshalExport(doc *domain.SessionExport) ([]byte, error) {
	return doc.Marshal()
}

// ParseExport decodes an export document.
func (s *Service) ParseExport(data []byte) (*domain.SessionExport, error) {
	return domain.ParseSessionExport(data)
}

// ImportSession stores an exported session as a new session in a single
// store transaction. Messages keep document order and their recorded models;
// the document's id and timestamps are not reused.
func (s *Service) ImportSession(ctx context.Context, doc *domain.SessionExport) (*domain.SessionRecord, error) {
	if doc == nil || strings.TrimSpace(doc.Title) == "" {
		return nil, fmt.Errorf("%w: export title is required", domain.ErrValidation)
	}
	for i, m := range doc.Messages {
		if !m.Role.Persistable() {
			return nil, fmt.Errorf("%w: message %d has role %q", domain.ErrValidation, i, m.Role)
		}
	}

	if !s.turnMu.TryLock() {
		return nil, domain.ErrTurnInProgress
	}
	defer s.turnMu.Unlock()

	messages := make([]domain.Message, 0, len(doc.Messages))
	for _, m := range doc.Messages {
		messages = append(messages, domain.Message{Role: m.Role, Content: m.Content, ModelID: m.ModelID})
	}
	modelID := doc.ModelID
	rec, err := s.store.ImportSession(ctx, doc.Title, &modelID, messages)
	if err != nil {
		return nil, err
	}
	s.cache.Upsert(*rec)
	if err := s.cache.SetCurrent(rec.ID); err != nil {
		return nil, err
	}
	s.cache.SelectModel(selectableModel(rec.ModelID))

	logger.InfoWithFields("session imported", logger.Fields{
		"session_id": rec.ID,
		"source_id":  doc.ID,
		"messages":   len(rec.Messages),
	})
	return rec, nil
}
