// Package store manages conversation persistence with PostgreSQL backend.
//
// Conversations hold a pointer to their most recent message, and each
// message points backward to its predecessor. History is reconstructed by
// walking that chain, which tolerates missing links (a dangling pointer
// truncates the walk rather than failing it).
package store

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// FragmentKind identifies the content type of a message fragment.
type FragmentKind string

// Fragment kinds.
const (
	FragmentText    FragmentKind = "text"
	FragmentThought FragmentKind = "thought"
	FragmentTable   FragmentKind = "table"
)

// Table is structured tabular content carried by a table fragment.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Fragment is one typed piece of message content. A message carries an
// ordered list of fragments: the reasoning trace (thoughts) followed by the
// answer text, or structured tables.
type Fragment struct {
	Kind    FragmentKind `json:"type"`
	Content string       `json:"content,omitempty"`
	Table   *Table       `json:"table,omitempty"`
}

// AuthorKind identifies who authored a message.
type AuthorKind string

// Author kinds. Values are persisted; changing them is a schema migration.
const (
	AuthorHuman AuthorKind = "HUMAN"
	AuthorAgent AuthorKind = "AGENT"
)

// Conversation is a chat thread owned by a user.
type Conversation struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	Title         string     `json:"title,omitempty"`
	LastMessageID *uuid.UUID `json:"last_message_id,omitempty"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Message is one turn in a conversation. PreviousMessageID forms the
// backward chain; nil marks the first message of a thread.
type Message struct {
	ID                uuid.UUID  `json:"id"`
	ConversationID    uuid.UUID  `json:"conversation_id"`
	PreviousMessageID *uuid.UUID `json:"previous_message_id,omitempty"`
	Author            AuthorKind `json:"author_kind"`
	Fragments         []Fragment `json:"fragments"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Text joins the message's text fragments with a space, skipping thoughts
// and tables. Used when flattening a message into model context.
func (m *Message) Text() string {
	var parts []string
	for _, f := range m.Fragments {
		if f.Kind == FragmentText && f.Content != "" {
			parts = append(parts, f.Content)
		}
	}
	return strings.Join(parts, " ")
}

// Chat roles understood by the completion backend.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a flattened message in completion-backend terms: persisted
// authors mapped to chat roles, fragments collapsed to plain text.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// roleForAuthor maps persisted author kinds to chat roles.
func roleForAuthor(author AuthorKind) string {
	if author == AuthorAgent {
		return RoleAssistant
	}
	return RoleUser
}
