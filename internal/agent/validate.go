package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/JohanValero/research-agent/internal/i18n"
	"github.com/JohanValero/research-agent/internal/store"
)

// ErrValidation marks request-shape failures rejected before any pipeline
// or storage work. The HTTP layer maps it to a client error.
var ErrValidation = errors.New("validation error")

// SendMessageRequest is the send-message operation's input shape.
type SendMessageRequest struct {
	ConversationID    uuid.UUID        `json:"conversation_id"`
	PreviousMessageID *uuid.UUID       `json:"previous_message_id,omitempty"`
	Author            store.AuthorKind `json:"author_kind"`
	Fragments         []store.Fragment `json:"fragments"`
}

// Validate enforces the request contract: HUMAN author, exactly one text
// fragment, non-blank content.
func (r *SendMessageRequest) Validate() error {
	if r.Author != store.AuthorHuman {
		return fmt.Errorf("%w: %s", ErrValidation, i18n.T("validate.author_human"))
	}
	if len(r.Fragments) != 1 || r.Fragments[0].Kind != store.FragmentText {
		return fmt.Errorf("%w: %s", ErrValidation, i18n.T("validate.single_text"))
	}
	if strings.TrimSpace(r.Fragments[0].Content) == "" {
		return fmt.Errorf("%w: %s", ErrValidation, i18n.T("validate.empty_text"))
	}
	return nil
}

// Query returns the request's message text.
func (r *SendMessageRequest) Query() string {
	return r.Fragments[0].Content
}
