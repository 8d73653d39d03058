package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/chatbot/internal/adapter/llm"
	"github.com/xiaot623/gogo/chatbot/internal/cache"
	"github.com/xiaot623/gogo/chatbot/internal/domain"
	"github.com/xiaot623/gogo/chatbot/internal/logger"
	"github.com/xiaot623/gogo/chatbot/internal/models"
	"github.com/xiaot623/gogo/chatbot/internal/policy"
)

// SubmitUtterance runs one turn: the user message is stored, the whole
// conversation is sent to the model and the reply is stored tagged with the
// model that produced it. An empty modelID uses the selected model.
//
// The returned turn is non-nil whenever the user message was stored. If the
// model call fails the turn is FAILED, the user message stays stored and
// RetryReply can produce the missing reply.
func (s *Service) SubmitUtterance(ctx context.Context, sessionID int64, text, modelID string) (*domain.Turn, error) {
	if !s.turnMu.TryLock() {
		return nil, domain.ErrTurnInProgress
	}
	defer s.turnMu.Unlock()

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: message must not be empty", domain.ErrValidation)
	}

	rec, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	turn, err := s.newTurn(sessionID, modelID)
	if err != nil {
		return nil, err
	}
	if err := s.checkPolicy(ctx, rec, turn.ModelID, text); err != nil {
		return nil, err
	}

	userMsg, err := s.appendMessage(ctx, sessionID, domain.RoleUser, text, turn.ModelID)
	if err != nil {
		return nil, err
	}
	turn.UserMessage = userMsg
	turn.State = domain.TurnStateUserSubmitted

	return s.completeTurn(ctx, turn)
}

// RetryReply asks the model again for the reply to the last stored message,
// which must be a user message. No new user message is stored.
func (s *Service) RetryReply(ctx context.Context, sessionID int64, modelID string) (*domain.Turn, error) {
	if !s.turnMu.TryLock() {
		return nil, domain.ErrTurnInProgress
	}
	defer s.turnMu.Unlock()

	rec, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	last, ok := rec.LastMessage()
	if !ok || last.Role != domain.RoleUser {
		return nil, fmt.Errorf("%w: session %d has no unanswered user message", domain.ErrValidation, sessionID)
	}

	turn, err := s.newTurn(sessionID, modelID)
	if err != nil {
		return nil, err
	}
	turn.UserMessage = &last
	turn.State = domain.TurnStateUserSubmitted

	return s.completeTurn(ctx, turn)
}

// newTurn starts a turn on modelID, which must be in the active catalog, or
// on the selected model when modelID is blank.
func (s *Service) newTurn(sessionID int64, modelID string) (*domain.Turn, error) {
	if strings.TrimSpace(modelID) == "" {
		modelID = s.cache.SelectedModel()
	} else {
		id, err := lookupModel(modelID)
		if err != nil {
			return nil, err
		}
		modelID = id
	}
	return &domain.Turn{
		TurnID:    "turn_" + uuid.New().String()[:8],
		SessionID: sessionID,
		ModelID:   models.Resolve(modelID),
		State:     domain.TurnStateIdle,
	}, nil
}

func (s *Service) checkPolicy(ctx context.Context, rec domain.SessionRecord, modelID, text string) error {
	if s.policyEngine == nil {
		return nil
	}

	texts := []string{s.systemPrompt(), text}
	for _, m := range rec.Messages {
		texts = append(texts, m.Content)
	}
	decision, err := s.policyEngine.Evaluate(ctx, policy.Input{
		SessionID:       rec.ID,
		ModelID:         modelID,
		Content:         text,
		EstimatedTokens: policy.EstimateTokens(texts...),
		ContextWindow:   models.Get(modelID).ContextWindow,
	})
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(decision.Reasons, "; "))
	}
	return nil
}

// completeTurn invokes the model on the stored conversation and stores the
// reply. turn must be in USER_SUBMITTED.
func (s *Service) completeTurn(ctx context.Context, turn *domain.Turn) (*domain.Turn, error) {
	rec, err := s.loadSession(ctx, turn.SessionID)
	if err != nil {
		return s.failTurn(turn, err, false)
	}

	req := &llm.ChatCompletionRequest{
		Model:       turn.ModelID,
		Messages:    buildPrompt(s.systemPrompt(), rec.Messages),
		Temperature: floatPtr(Temperature),
	}
	if limit := models.Get(turn.ModelID).MaxCompletion; limit > 0 {
		req.MaxTokens = &limit
	}

	turn.State = domain.TurnStateModelInvoked
	callCtx, cancel := s.invocationContext(ctx)
	defer cancel()

	start := time.Now()
	resp, err := s.llmClient.CreateChatCompletion(callCtx, req)
	turn.LatencyMs = time.Since(start).Milliseconds()
	if err == nil {
		var reply string
		if reply, err = resp.Reply(); err == nil {
			return s.storeReply(ctx, turn, reply, resp.Usage)
		}
	}
	return s.failTurn(turn, fmt.Errorf("%w: %w", domain.ErrInvocation, err), true)
}

func (s *Service) storeReply(ctx context.Context, turn *domain.Turn, reply string, usage *llm.Usage) (*domain.Turn, error) {
	assistantMsg, err := s.appendMessage(ctx, turn.SessionID, domain.RoleAssistant, reply, turn.ModelID)
	if err != nil {
		return s.failTurn(turn, err, true)
	}
	turn.AssistantMessage = assistantMsg
	turn.State = domain.TurnStateCompleted

	fields := logger.Fields{
		"turn_id":    turn.TurnID,
		"session_id": turn.SessionID,
		"model_id":   turn.ModelID,
		"latency_ms": turn.LatencyMs,
	}
	if usage != nil {
		fields["prompt_tokens"] = usage.PromptTokens
		fields["completion_tokens"] = usage.CompletionTokens
	}
	logger.InfoWithFields("turn completed", fields)
	return turn, nil
}

func (s *Service) failTurn(turn *domain.Turn, err error, retryable bool) (*domain.Turn, error) {
	turn.State = domain.TurnStateFailed
	turn.Error = err.Error()
	turn.Retryable = retryable

	logger.ErrorWithFields("turn failed", logger.Fields{
		"turn_id":    turn.TurnID,
		"session_id": turn.SessionID,
		"model_id":   turn.ModelID,
		"error":      err.Error(),
	})
	return turn, err
}

// appendMessage stores a message and mirrors it into the cache. The store is
// authoritative: a cache that disagrees with the stored sequence number is
// reloaded from the store.
func (s *Service) appendMessage(ctx context.Context, sessionID int64, role domain.Role, content, modelID string) (*domain.Message, error) {
	msg, err := s.store.AppendMessage(ctx, sessionID, role, content, &modelID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.cache.Remove(sessionID)
		}
		return nil, err
	}

	if err := s.cache.AppendMessage(sessionID, *msg); err != nil {
		if errors.Is(err, cache.ErrOutOfOrder) {
			logger.WarnWithFields("cache out of sequence, reloading session", logger.Fields{
				"session_id": sessionID,
				"seq":        msg.Seq,
				"error":      err.Error(),
			})
		}
		s.resync(ctx, sessionID)
	}
	return msg, nil
}

// buildPrompt is the system directive followed by every stored message in
// sequence order.
func buildPrompt(systemPrompt string, messages []domain.Message) []llm.ChatMessage {
	prompt := make([]llm.ChatMessage, 0, len(messages)+1)
	prompt = append(prompt, llm.ChatMessage{Role: string(domain.RoleSystem), Content: systemPrompt})
	for _, m := range messages {
		prompt = append(prompt, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return prompt
}

func (s *Service) invocationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config == nil || s.config.LLMTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.LLMTimeout)
}

func floatPtr(f float64) *float64 {
	return &f
}
