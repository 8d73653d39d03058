// Package service implements the conversation orchestrator: session intents,
// the turn state machine and session export.
package service

import (
	"sync"
	"time"

	"github.com/xiaot623/gogo/chatbot/internal/adapter/llm"
	"github.com/xiaot623/gogo/chatbot/internal/cache"
	"github.com/xiaot623/gogo/chatbot/internal/config"
	"github.com/xiaot623/gogo/chatbot/internal/policy"
	"github.com/xiaot623/gogo/chatbot/internal/repository"
)

// Temperature is the sampling temperature of every model call.
const Temperature = 0.1

type Service struct {
	store        repository.Store
	cache        *cache.State
	llmClient    llm.LLMClient
	config       *config.Config
	policyEngine *policy.Engine

	// turnMu admits one turn at a time.
	turnMu sync.Mutex
	now    func() time.Time
}

// New wires a service. policyEngine may be nil, which skips the submission
// policy.
func New(store repository.Store, state *cache.State, llmClient llm.LLMClient, cfg *config.Config, policyEngine *policy.Engine) *Service {
	if state == nil {
		state = cache.New()
	}
	return &Service{
		store:        store,
		cache:        state,
		llmClient:    llmClient,
		config:       cfg,
		policyEngine: policyEngine,
		now:          time.Now,
	}
}

func (s *Service) systemPrompt() string {
	if s.config == nil || s.config.SystemPrompt == "" {
		return config.DefaultSystemPrompt
	}
	return s.config.SystemPrompt
}
