package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/JohanValero/research-agent/internal/log"
	"github.com/JohanValero/research-agent/internal/store"
)

// MessageStore is the subset of the conversation store the message CRUD
// handlers need. *store.Store satisfies it.
type MessageStore interface {
	Append(ctx context.Context, params store.AppendParams) (*store.Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (*store.Message, error)
	ReconstructChain(ctx context.Context, conversationID uuid.UUID) ([]*store.Message, error)
	ListChronological(ctx context.Context, conversationID uuid.UUID, skip, limit int) ([]*store.Message, error)
	UpdateMessageFragments(ctx context.Context, id uuid.UUID, fragments []store.Fragment) (*store.Message, error)
	DeleteMessage(ctx context.Context, id uuid.UUID) error
}

// messageHandler holds dependencies for message CRUD endpoints.
type messageHandler struct {
	store  MessageStore
	logger log.Logger
}

// createMessageRequest is the request body for POST /api/messages. Unlike
// the chat stream it accepts any author and fragment mix; the chain rules
// (conversation must exist, previous message must exist) still apply.
type createMessageRequest struct {
	ConversationID    uuid.UUID        `json:"conversation_id"`
	PreviousMessageID *uuid.UUID       `json:"previous_message_id,omitempty"`
	Author            store.AuthorKind `json:"author_kind"`
	Fragments         []store.Fragment `json:"fragments"`
}

// create handles POST /api/messages.
func (h *messageHandler) create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024)

	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}
	if req.Author != store.AuthorHuman && req.Author != store.AuthorAgent {
		WriteError(w, http.StatusBadRequest, "invalid_author", "author_kind must be HUMAN or AGENT", h.logger)
		return
	}
	if len(req.Fragments) == 0 {
		WriteError(w, http.StatusBadRequest, "empty_fragments", "at least one fragment is required", h.logger)
		return
	}

	msg, err := h.store.Append(r.Context(), store.AppendParams{
		ConversationID:    req.ConversationID,
		PreviousMessageID: req.PreviousMessageID,
		Author:            req.Author,
		Fragments:         req.Fragments,
	})
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
			return
		}
		if errors.Is(err, store.ErrMessageNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "previous message not found", h.logger)
			return
		}
		h.logger.Error("creating message", "error", err, "conversation_id", req.ConversationID)
		WriteError(w, http.StatusInternalServerError, "create_failed", "failed to create message", h.logger)
		return
	}

	h.logger.Info("message created", "message_id", msg.ID, "conversation_id", msg.ConversationID)
	WriteJSON(w, http.StatusCreated, msg, h.logger)
}

// get handles GET /api/messages/{id}.
func (h *messageHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	msg, err := h.store.GetMessage(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrMessageNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "message not found", h.logger)
			return
		}
		h.logger.Error("getting message", "error", err, "message_id", id)
		WriteError(w, http.StatusInternalServerError, "get_failed", "failed to get message", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, msg, h.logger)
}

// history handles GET /api/conversations/{id}/messages/history — the chain
// walked backward from the conversation's last-message pointer, returned
// oldest first.
func (h *messageHandler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	msgs, err := h.store.ReconstructChain(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
			return
		}
		h.logger.Error("reconstructing history", "error", err, "conversation_id", id)
		WriteError(w, http.StatusInternalServerError, "history_failed", "failed to reconstruct history", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, msgs, h.logger)
}

// list handles GET /api/conversations/{id}/messages with skip/limit
// pagination in chronological order. Unlike history it ignores the chain,
// so it also surfaces messages orphaned by deleted links.
func (h *messageHandler) list(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	skip := parseIntParam(r, "skip", 0, 0, 10000)
	limit := parseIntParam(r, "limit", 100, 1, maxListLimit)

	msgs, err := h.store.ListChronological(r.Context(), id, skip, limit)
	if err != nil {
		h.logger.Error("listing messages", "error", err, "conversation_id", id)
		WriteError(w, http.StatusInternalServerError, "list_failed", "failed to list messages", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"items": msgs,
		"total": len(msgs),
		"skip":  skip,
		"limit": limit,
	}, h.logger)
}

// updateMessageRequest is the request body for PUT /api/messages/{id}.
type updateMessageRequest struct {
	Fragments []store.Fragment `json:"fragments"`
}

// update handles PUT /api/messages/{id} — replaces the message's fragments
// wholesale. Chain pointers are untouched.
func (h *messageHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024)

	var req updateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}
	if len(req.Fragments) == 0 {
		WriteError(w, http.StatusBadRequest, "empty_fragments", "at least one fragment is required", h.logger)
		return
	}

	msg, err := h.store.UpdateMessageFragments(r.Context(), id, req.Fragments)
	if err != nil {
		if errors.Is(err, store.ErrMessageNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "message not found", h.logger)
			return
		}
		h.logger.Error("updating message", "error", err, "message_id", id)
		WriteError(w, http.StatusInternalServerError, "update_failed", "failed to update message", h.logger)
		return
	}

	h.logger.Info("message updated", "message_id", id)
	WriteJSON(w, http.StatusOK, msg, h.logger)
}

// delete handles DELETE /api/messages/{id}. Deleting a middle link breaks
// the backward chain; history reconstruction truncates there and the
// chronological listing keeps serving the remainder.
func (h *messageHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	if err := h.store.DeleteMessage(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrMessageNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "message not found", h.logger)
			return
		}
		h.logger.Error("deleting message", "error", err, "message_id", id)
		WriteError(w, http.StatusInternalServerError, "delete_failed", "failed to delete message", h.logger)
		return
	}

	h.logger.Info("message deleted", "message_id", id)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"}, h.logger)
}
