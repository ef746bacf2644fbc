package store

import "errors"

// Sentinel errors for lookups. Callers branch on these with errors.Is to
// distinguish missing rows from infrastructure failures.
var (
	// ErrConversationNotFound indicates the conversation does not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrMessageNotFound indicates the message does not exist.
	ErrMessageNotFound = errors.New("message not found")
)
