// Package domain defines the core domain models for the chatbot.
package domain

// Role represents the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem only ever appears in prompts sent to the model.
	RoleSystem Role = "system"
)

// Persistable reports whether messages with this role may be stored.
func (r Role) Persistable() bool {
	return r == RoleUser || r == RoleAssistant
}

// TurnState represents the progress of one conversation turn.
type TurnState string

const (
	TurnStateIdle          TurnState = "IDLE"
	TurnStateUserSubmitted TurnState = "USER_SUBMITTED"
	TurnStateModelInvoked  TurnState = "MODEL_INVOKED"
	TurnStateCompleted     TurnState = "COMPLETED"
	TurnStateFailed        TurnState = "FAILED"
)
