package domain

// CreateSessionRequest represents a "new chat" confirmation.
type CreateSessionRequest struct {
	Title string `json:"title"`
	// Skip creates the session with a timestamp title instead of Title.
	Skip bool `json:"skip,omitempty"`
}

// DraftTitleRequest updates the title typed into the new-chat form.
type DraftTitleRequest struct {
	DraftTitle string `json:"draft_title"`
}

// SelectModelRequest selects the active model by id or by display label.
type SelectModelRequest struct {
	ModelID string `json:"model_id,omitempty"`
	Label   string `json:"label,omitempty"`
}

// SubmitMessageRequest carries a user utterance.
type SubmitMessageRequest struct {
	Content string `json:"content"`
	ModelID string `json:"model_id,omitempty"`
}

// RetryRequest asks for a new reply to the last user message.
type RetryRequest struct {
	ModelID string `json:"model_id,omitempty"`
}

// ModelListItem is a catalog entry with its selector label.
type ModelListItem struct {
	ModelInfo
	DisplayName string `json:"display_name"`
	Default     bool   `json:"default"`
}

// ListModelsResponse represents the model catalog response.
type ListModelsResponse struct {
	Models       []ModelListItem `json:"models"`
	DefaultModel string          `json:"default_model"`
}

// StateResponse is the snapshot rendered by the UI.
type StateResponse struct {
	Sessions      []Session `json:"sessions"`
	CurrentID     *int64    `json:"current_session_id"`
	SelectedModel string    `json:"selected_model"`
	NewChatMode   bool      `json:"new_chat_mode"`
	DraftTitle    string    `json:"draft_title"`
}

// TurnResponse is returned by message submission and retry.
type TurnResponse struct {
	Turn    *Turn          `json:"turn"`
	Session *SessionRecord `json:"session,omitempty"`
}
