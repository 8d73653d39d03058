package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestToGeminiContents(t *testing.T) {
	system, contents := toGeminiContents([]ChatMessage{
		{Role: "system", Content: "You're a helpful assistant."},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
		{Role: "user", Content: "again"},
	})

	require.NotNil(t, system)
	require.Len(t, system.Parts, 1)
	assert.Equal(t, "You're a helpful assistant.", system.Parts[0].Text)

	require.Len(t, contents, 3)
	assert.Equal(t, string(genai.RoleUser), contents[0].Role)
	assert.Equal(t, string(genai.RoleModel), contents[1].Role)
	assert.Equal(t, "again", contents[2].Parts[0].Text)
}

func TestToGeminiContentsWithoutSystem(t *testing.T) {
	system, contents := toGeminiContents([]ChatMessage{{Role: "user", Content: "hello"}})
	assert.Nil(t, system)
	assert.Len(t, contents, 1)
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), "")
	assert.Error(t, err)
}
