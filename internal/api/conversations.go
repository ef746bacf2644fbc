package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/JohanValero/research-agent/internal/i18n"
	"github.com/JohanValero/research-agent/internal/log"
	"github.com/JohanValero/research-agent/internal/store"
)

const maxListLimit = 200

// ConversationStore is the subset of the conversation store the CRUD
// handlers need. *store.Store satisfies it.
type ConversationStore interface {
	CreateConversation(ctx context.Context, userID uuid.UUID, title string) (*store.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*store.Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID, skip, limit int) ([]*store.Conversation, error)
	UpdateConversation(ctx context.Context, id uuid.UUID, upd store.ConversationUpdate) (*store.Conversation, error)
	DeleteConversation(ctx context.Context, id uuid.UUID) error
}

// conversationHandler holds dependencies for conversation CRUD endpoints.
type conversationHandler struct {
	store  ConversationStore
	logger log.Logger
}

// createConversationRequest is the request body for POST /api/conversations.
type createConversationRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Title  string    `json:"title"`
}

// create handles POST /api/conversations.
func (h *conversationHandler) create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)

	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}
	if req.UserID == uuid.Nil {
		WriteError(w, http.StatusBadRequest, "invalid_user_id", i18n.T("validate.invalid_id"), h.logger)
		return
	}

	conv, err := h.store.CreateConversation(r.Context(), req.UserID, req.Title)
	if err != nil {
		h.logger.Error("creating conversation", "error", err, "user_id", req.UserID)
		WriteError(w, http.StatusInternalServerError, "create_failed", "failed to create conversation", h.logger)
		return
	}

	h.logger.Info("conversation created", "conversation_id", conv.ID, "user_id", conv.UserID)
	WriteJSON(w, http.StatusCreated, conv, h.logger)
}

// get handles GET /api/conversations/{id}.
func (h *conversationHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	conv, err := h.store.GetConversation(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
			return
		}
		h.logger.Error("getting conversation", "error", err, "conversation_id", id)
		WriteError(w, http.StatusInternalServerError, "get_failed", "failed to get conversation", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, conv, h.logger)
}

// list handles GET /api/conversations/user/{user_id} with skip/limit
// pagination, most recently updated first.
func (h *conversationHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "user_id", h.logger)
	if !ok {
		return
	}

	skip := parseIntParam(r, "skip", 0, 0, 10000)
	limit := parseIntParam(r, "limit", 100, 1, maxListLimit)

	convs, err := h.store.ListConversations(r.Context(), userID, skip, limit)
	if err != nil {
		h.logger.Error("listing conversations", "error", err, "user_id", userID)
		WriteError(w, http.StatusInternalServerError, "list_failed", "failed to list conversations", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"items": convs,
		"total": len(convs),
		"skip":  skip,
		"limit": limit,
	}, h.logger)
}

// updateConversationRequest is the request body for PATCH /api/conversations/{id}.
// Absent fields are left unchanged.
type updateConversationRequest struct {
	Title  *string `json:"title"`
	Active *bool   `json:"active"`
}

// update handles PATCH /api/conversations/{id}.
func (h *conversationHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)

	var req updateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}
	if req.Title == nil && req.Active == nil {
		WriteError(w, http.StatusBadRequest, "nothing_to_update", i18n.T("validate.nothing_to_set"), h.logger)
		return
	}

	conv, err := h.store.UpdateConversation(r.Context(), id, store.ConversationUpdate{
		Title:  req.Title,
		Active: req.Active,
	})
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
			return
		}
		h.logger.Error("updating conversation", "error", err, "conversation_id", id)
		WriteError(w, http.StatusInternalServerError, "update_failed", "failed to update conversation", h.logger)
		return
	}

	h.logger.Info("conversation updated", "conversation_id", id)
	WriteJSON(w, http.StatusOK, conv, h.logger)
}

// delete handles DELETE /api/conversations/{id}. Messages go with it via
// the schema's ON DELETE CASCADE.
func (h *conversationHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	if err := h.store.DeleteConversation(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
			return
		}
		h.logger.Error("deleting conversation", "error", err, "conversation_id", id)
		WriteError(w, http.StatusInternalServerError, "delete_failed", "failed to delete conversation", h.logger)
		return
	}

	h.logger.Info("conversation deleted", "conversation_id", id)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"}, h.logger)
}

// pathUUID parses a UUID path parameter, writing a 400 on failure.
func pathUUID(w http.ResponseWriter, r *http.Request, name string, logger log.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", i18n.T("validate.invalid_id"), logger)
		return uuid.Nil, false
	}
	return id, true
}
