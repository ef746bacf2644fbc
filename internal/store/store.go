package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// maxChainHops bounds the backward chain walk. A well-formed conversation
// never approaches this; the bound protects against pointer cycles caused
// by corrupted data.
const maxChainHops = 10000

// DB defines the database operations the store needs.
// Interfaces are defined by the consumer, not the provider: *pgxpool.Pool
// satisfies this in production, and tests supply a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages conversation and message persistence.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger *slog.Logger
}

// New creates a new Store instance.
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

const conversationColumns = "id, user_id, title, last_message_id, active, created_at, updated_at"

const messageColumns = "id, conversation_id, previous_message_id, author, fragments, created_at, updated_at"

// CreateConversation creates a new conversation for a user.
// Title may be empty; it is stored as NULL.
func (s *Store) CreateConversation(ctx context.Context, userID uuid.UUID, title string) (*Conversation, error) {
	var titlePtr *string
	if title != "" {
		titlePtr = &title
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO conversations (id, user_id, title)
		VALUES ($1, $2, $3)
		RETURNING `+conversationColumns,
		uuidToPg(uuid.New()), uuidToPg(userID), titlePtr)

	conv, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "user_id", conv.UserID)
	return conv, nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrConversationNotFound if no row exists.
func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE id = $1`,
		uuidToPg(id))

	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("conversation %s: %w", id, ErrConversationNotFound)
		}
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	return conv, nil
}

// ListConversations lists a user's conversations with pagination, ordered
// by updated_at descending (most recently active first).
func (s *Store) ListConversations(ctx context.Context, userID uuid.UUID, skip, limit int) ([]*Conversation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3`,
		uuidToPg(userID), limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	s.logger.Debug("listed conversations", "user_id", userID, "count", len(conversations))
	return conversations, nil
}

// ConversationUpdate carries the optional fields of a conversation update.
// Nil fields are left unchanged.
type ConversationUpdate struct {
	Title  *string
	Active *bool
}

// UpdateConversation applies a partial update and returns the updated row.
func (s *Store) UpdateConversation(ctx context.Context, id uuid.UUID, upd ConversationUpdate) (*Conversation, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE conversations
		SET title = COALESCE($2, title),
		    active = COALESCE($3, active),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+conversationColumns,
		uuidToPg(id), upd.Title, upd.Active)

	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("conversation %s: %w", id, ErrConversationNotFound)
		}
		return nil, fmt.Errorf("failed to update conversation %s: %w", id, err)
	}

	s.logger.Debug("updated conversation", "id", id)
	return conv, nil
}

// DeleteConversation deletes a conversation and all its messages (CASCADE).
func (s *Store) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, uuidToPg(id))
	if err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrConversationNotFound)
	}

	s.logger.Debug("deleted conversation", "id", id)
	return nil
}

// AppendParams describes a message to append to a conversation.
type AppendParams struct {
	ConversationID    uuid.UUID
	PreviousMessageID *uuid.UUID
	Author            AuthorKind
	Fragments         []Fragment
}

// Append inserts a message and advances the conversation's last-message
// pointer. The conversation must exist; a non-nil previous message must
// exist too.
//
// Insert and pointer update are two statements, not a transaction: if the
// pointer update fails the message is still readable by its ID, and the
// chain simply does not include it. Last writer wins on concurrent appends.
func (s *Store) Append(ctx context.Context, params AppendParams) (*Message, error) {
	if _, err := s.GetConversation(ctx, params.ConversationID); err != nil {
		return nil, err
	}

	if params.PreviousMessageID != nil {
		if _, err := s.GetMessage(ctx, *params.PreviousMessageID); err != nil {
			return nil, err
		}
	}

	fragmentsJSON, err := json.Marshal(params.Fragments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fragments: %w", err)
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, previous_message_id, author, fragments)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+messageColumns,
		uuidToPg(uuid.New()),
		uuidToPg(params.ConversationID),
		uuidPtrToPg(params.PreviousMessageID),
		string(params.Author),
		fragmentsJSON)

	msg, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	if _, err := s.db.Exec(ctx, `
		UPDATE conversations
		SET last_message_id = $2, updated_at = now()
		WHERE id = $1`,
		uuidToPg(params.ConversationID), uuidToPg(msg.ID)); err != nil {
		return nil, fmt.Errorf("failed to advance conversation pointer: %w", err)
	}

	s.logger.Debug("appended message",
		"id", msg.ID,
		"conversation_id", msg.ConversationID,
		"author", msg.Author)
	return msg, nil
}

// GetMessage retrieves a message by ID.
// Returns ErrMessageNotFound if no row exists.
func (s *Store) GetMessage(ctx context.Context, id uuid.UUID) (*Message, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = $1`,
		uuidToPg(id))

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, ErrMessageNotFound)
		}
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return msg, nil
}

// ReconstructChain rebuilds a conversation's history by walking backward
// from its last message and returns it oldest-first.
//
// A missing link truncates the walk: everything older than the dangling
// pointer is silently dropped. This keeps conversations readable after
// partial deletions instead of failing the whole request.
func (s *Store) ReconstructChain(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if conv.LastMessageID == nil {
		return []*Message{}, nil
	}

	var chain []*Message
	next := conv.LastMessageID
	for hops := 0; next != nil && hops < maxChainHops; hops++ {
		msg, err := s.GetMessage(ctx, *next)
		if err != nil {
			if errors.Is(err, ErrMessageNotFound) {
				s.logger.Warn("chain link missing, truncating history",
					"conversation_id", conversationID,
					"message_id", *next,
					"collected", len(chain))
				break
			}
			return nil, err
		}
		chain = append(chain, msg)
		next = msg.PreviousMessageID
	}

	if next != nil && len(chain) >= maxChainHops {
		s.logger.Error("chain walk hit hop bound, possible cycle",
			"conversation_id", conversationID)
	}

	// Walked newest-to-oldest; callers want chronological order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// LastN returns the newest n messages of a conversation as chat turns,
// oldest-first, with authors mapped to completion-backend roles and
// fragments flattened to text. Used to build model context.
func (s *Store) LastN(ctx context.Context, conversationID uuid.UUID, n int) ([]Turn, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		uuidToPg(conversationID), n)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}

	turns := make([]Turn, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		turns = append(turns, Turn{
			Role:    roleForAuthor(messages[i].Author),
			Content: messages[i].Text(),
		})
	}
	return turns, nil
}

// ListChronological lists a conversation's messages by creation time
// ascending with pagination. Unlike ReconstructChain it ignores the
// pointer chain, so it also surfaces orphaned messages.
func (s *Store) ListChronological(ctx context.Context, conversationID uuid.UUID, skip, limit int) ([]*Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`,
		uuidToPg(conversationID), limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// UpdateMessageFragments replaces a message's fragments.
// The chain pointers are untouched; only content changes.
func (s *Store) UpdateMessageFragments(ctx context.Context, id uuid.UUID, fragments []Fragment) (*Message, error) {
	fragmentsJSON, err := json.Marshal(fragments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fragments: %w", err)
	}

	row := s.db.QueryRow(ctx, `
		UPDATE messages
		SET fragments = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+messageColumns,
		uuidToPg(id), fragmentsJSON)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, ErrMessageNotFound)
		}
		return nil, fmt.Errorf("failed to update message %s: %w", id, err)
	}

	s.logger.Debug("updated message fragments", "id", id)
	return msg, nil
}

// DeleteMessage removes a single message.
//
// Chain pointers referencing the deleted message are left dangling on
// purpose: ReconstructChain truncates at the gap, and conversations stay
// readable. Callers who need a consistent chain should repair pointers
// themselves.
func (s *Store) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM messages WHERE id = $1`, uuidToPg(id))
	if err != nil {
		return fmt.Errorf("failed to delete message %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", id, ErrMessageNotFound)
	}

	s.logger.Debug("deleted message", "id", id)
	return nil
}

// scanConversation scans one conversation row (pgx.Row or pgx.Rows).
func scanConversation(row pgx.Row) (*Conversation, error) {
	var (
		id        pgtype.UUID
		userID    pgtype.UUID
		title     *string
		lastMsgID pgtype.UUID
		active    bool
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &userID, &title, &lastMsgID, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	conv := &Conversation{
		ID:            pgToUUID(id),
		UserID:        pgToUUID(userID),
		Active:        active,
		CreatedAt:     createdAt.Time,
		UpdatedAt:     updatedAt.Time,
		LastMessageID: pgToUUIDPtr(lastMsgID),
	}
	if title != nil {
		conv.Title = *title
	}
	return conv, nil
}

// scanMessage scans one message row (pgx.Row or pgx.Rows).
func scanMessage(row pgx.Row) (*Message, error) {
	var (
		id            pgtype.UUID
		convID        pgtype.UUID
		prevID        pgtype.UUID
		author        string
		fragmentsJSON []byte
		createdAt     pgtype.Timestamptz
		updatedAt     pgtype.Timestamptz
	)
	if err := row.Scan(&id, &convID, &prevID, &author, &fragmentsJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var fragments []Fragment
	if err := json.Unmarshal(fragmentsJSON, &fragments); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fragments: %w", err)
	}

	return &Message{
		ID:                pgToUUID(id),
		ConversationID:    pgToUUID(convID),
		PreviousMessageID: pgToUUIDPtr(prevID),
		Author:            AuthorKind(author),
		Fragments:         fragments,
		CreatedAt:         createdAt.Time,
		UpdatedAt:         updatedAt.Time,
	}, nil
}

// uuidToPg converts uuid.UUID to pgtype.UUID.
func uuidToPg(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// uuidPtrToPg converts *uuid.UUID to pgtype.UUID, nil becoming SQL NULL.
func uuidPtrToPg(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

// pgToUUID converts pgtype.UUID to uuid.UUID.
func pgToUUID(pgUUID pgtype.UUID) uuid.UUID {
	if !pgUUID.Valid {
		return uuid.Nil
	}
	return pgUUID.Bytes
}

// pgToUUIDPtr converts pgtype.UUID to *uuid.UUID, SQL NULL becoming nil.
func pgToUUIDPtr(pgUUID pgtype.UUID) *uuid.UUID {
	if !pgUUID.Valid {
		return nil
	}
	id := uuid.UUID(pgUUID.Bytes)
	return &id
}
