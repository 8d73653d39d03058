package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xiaot623/gogo/chatbot/internal/adapter/llm"
	"github.com/xiaot623/gogo/chatbot/internal/cache"
	"github.com/xiaot623/gogo/chatbot/internal/config"
	"github.com/xiaot623/gogo/chatbot/internal/service"
	"github.com/xiaot623/gogo/chatbot/tests/helpers"
)

func TestNewServerRoutes(t *testing.T) {
	svc := service.New(helpers.NewTestSQLiteStore(t), cache.New(), llm.NewMockClient(), &config.Config{LLMTimeout: time.Second}, nil)
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	e := NewServer(svc)

	for _, path := range []string{"/health", "/v1/state", "/v1/models", "/v1/sessions"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
