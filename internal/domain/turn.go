package domain

// Turn records the outcome of one user utterance and the model reply.
type Turn struct {
	TurnID           string    `json:"turn_id"`
	SessionID        int64     `json:"session_id"`
	ModelID          string    `json:"model_id"`
	State            TurnState `json:"state"`
	UserMessage      *Message  `json:"user_message,omitempty"`
	AssistantMessage *Message  `json:"assistant_message,omitempty"`
	Error            string    `json:"error,omitempty"`
	// Retryable is set when the user message is stored and only the reply is missing.
	Retryable bool  `json:"retryable"`
	LatencyMs int64 `json:"latency_ms,omitempty"`
}

// Done reports whether the turn reached a terminal state.
func (t *Turn) Done() bool {
	return t.State == TurnStateCompleted || t.State == TurnStateFailed
}
