package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/chatbot/internal/adapter/llm"
	"github.com/xiaot623/gogo/chatbot/internal/domain"
	"github.com/xiaot623/gogo/chatbot/internal/logger"
	"github.com/xiaot623/gogo/chatbot/internal/models"
)

// Bootstrap loads every stored session into the cache and makes the newest
// one current.
func (s *Service) Bootstrap(ctx context.Context) error {
	records, err := s.store.LoadAllSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}
	s.cache.Load(records)
	s.focusNewest()

	logger.InfoWithFields("sessions loaded", logger.Fields{
		"sessions": len(records),
	})
	return nil
}

// State returns the snapshot rendered by the UI.
func (s *Service) State() domain.StateResponse {
	return s.cache.Snapshot()
}

// ListSessions returns all sessions, newest first, without messages.
func (s *Service) ListSessions() []domain.Session {
	return s.cache.List()
}

// GetSession returns a session with its messages.
func (s *Service) GetSession(ctx context.Context, sessionID int64) (*domain.SessionRecord, error) {
	rec, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// BeginNewChat opens the new-chat form.
func (s *Service) BeginNewChat() {
	s.cache.BeginNewChat()
}

// SetDraftTitle records the title typed into the new-chat form.
func (s *Service) SetDraftTitle(title string) {
	s.cache.SetDraftTitle(title)
}

// CancelNewChat closes the new-chat form without creating a session.
func (s *Service) CancelNewChat() {
	s.cache.EndNewChat()
}

// CreateSession creates a session with the selected model and makes it
// current. A blank title is rejected and leaves the state untouched.
func (s *Service) CreateSession(ctx context.Context, title string) (*domain.SessionRecord, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrValidation)
	}

	modelID := s.cache.SelectedModel()
	session, err := s.store.CreateSession(ctx, title, &modelID)
	if err != nil {
		return nil, err
	}

	rec := domain.SessionRecord{Session: *session, Messages: []domain.Message{}}
	s.cache.Upsert(rec)
	if err := s.cache.SetCurrent(session.ID); err != nil {
		return nil, err
	}
	s.cache.EndNewChat()

	logger.InfoWithFields("session created", logger.Fields{
		"session_id": session.ID,
		"model_id":   session.ModelID,
	})
	return &rec, nil
}

// CreateSessionSkipTitle creates a session titled with the current time.
func (s *Service) CreateSessionSkipTitle(ctx context.Context) (*domain.SessionRecord, error) {
	return s.CreateSession(ctx, domain.FormatTimestamp(s.now()))
}

// DeleteSession removes a session from the store and then from the cache.
// When the current session goes away the newest remaining one takes its
// place. Unknown ids are a no-op.
func (s *Service) DeleteSession(ctx context.Context, sessionID int64) error {
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	s.cache.Remove(sessionID)
	if _, ok := s.cache.Current(); !ok {
		s.focusNewest()
	}

	logger.InfoWithFields("session deleted", logger.Fields{
		"session_id": sessionID,
	})
	return nil
}

// SelectSession makes a session current and selects the model it was
// created with, or the default model when the active catalog does not
// offer it.
func (s *Service) SelectSession(ctx context.Context, sessionID int64) (*domain.SessionRecord, error) {
	rec, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetCurrent(sessionID); err != nil {
		return nil, err
	}
	s.cache.SelectModel(selectableModel(rec.ModelID))
	s.cache.EndNewChat()
	return &rec, nil
}

// SelectModel selects the model for the next turn. idOrLabel is either a
// catalog id or its display name.
func (s *Service) SelectModel(idOrLabel string) (string, error) {
	id, err := lookupModel(idOrLabel)
	if err != nil {
		return "", err
	}
	s.cache.SelectModel(id)
	return id, nil
}

// lookupModel maps an id or display name to an id of the active catalog.
func lookupModel(idOrLabel string) (string, error) {
	id := strings.TrimSpace(idOrLabel)
	if models.Has(id) {
		return id, nil
	}
	if id, ok := models.FromDisplayName(idOrLabel); ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: unknown model %q", domain.ErrValidation, idOrLabel)
}

// Models returns the catalog with display names.
func (s *Service) Models() domain.ListModelsResponse {
	defaultModel := models.Default()
	resp := domain.ListModelsResponse{DefaultModel: defaultModel}
	for _, m := range models.List() {
		resp.Models = append(resp.Models, domain.ModelListItem{
			ModelInfo:   m,
			DisplayName: models.DisplayName(m.ID),
			Default:     m.ID == defaultModel,
		})
	}
	return resp
}

// RemoteModels lists the models the configured provider serves.
func (s *Service) RemoteModels(ctx context.Context) ([]llm.Model, error) {
	list, err := s.llmClient.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvocation, err)
	}
	return list, nil
}

// loadSession reads a session from the cache, falling back to the store.
func (s *Service) loadSession(ctx context.Context, sessionID int64) (domain.SessionRecord, error) {
	if rec, ok := s.cache.Get(sessionID); ok {
		return rec, nil
	}
	rec, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.SessionRecord{}, err
	}
	s.cache.Upsert(*rec)
	return *rec, nil
}

func (s *Service) focusNewest() {
	id, ok := s.cache.Newest()
	if !ok {
		s.cache.ClearCurrent()
		s.cache.SelectModel(models.Default())
		return
	}
	if err := s.cache.SetCurrent(id); err != nil {
		return
	}
	if rec, ok := s.cache.Get(id); ok {
		s.cache.SelectModel(selectableModel(rec.ModelID))
	}
}

func selectableModel(id string) string {
	if models.Has(id) {
		return id
	}
	return models.Default()
}

// resync replaces the cached copy of a session with the stored one.
func (s *Service) resync(ctx context.Context, sessionID int64) {
	rec, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, domain.ErrNotFound) {
		s.cache.Remove(sessionID)
		return
	}
	if err != nil {
		logger.ErrorWithFields("failed to resync session", logger.Fields{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return
	}
	s.cache.Upsert(*rec)
}
