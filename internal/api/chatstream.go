package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/JohanValero/research-agent/internal/agent"
	"github.com/JohanValero/research-agent/internal/log"
	"github.com/JohanValero/research-agent/internal/sse"
)

// Responder runs one send-message request end-to-end against an event
// stream. *agent.Runner satisfies it.
type Responder interface {
	Respond(ctx context.Context, req agent.SendMessageRequest, emit agent.EmitFunc) error
}

// chatHandler holds dependencies for the streaming chat endpoint.
type chatHandler struct {
	runner Responder
	logger log.Logger
}

// stream handles POST /api/chat/stream.
//
// Request-shape problems are rejected with plain JSON errors before any
// stream state exists. Once the SSE stream is open, the stream itself is
// the error channel: domain failures arrive as terminal error events and
// the HTTP status stays 200.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024)

	var req agent.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_failed", err.Error(), h.logger)
		return
	}

	sw, err := sse.NewWriter(w)
	if err != nil {
		h.logger.Error("streaming unsupported", "error", err)
		WriteError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported", h.logger)
		return
	}

	logger := h.logger.With("conversation_id", req.ConversationID)
	logger.Debug("chat stream started")

	ctx := r.Context()
	if err := h.runner.Respond(ctx, req, func(ev agent.StreamEvent) error {
		return sw.WriteJSON(ctx, ev)
	}); err != nil {
		// Client gone or canceled. Nothing more can be written.
		logger.Info("chat stream aborted", "error", err)
		return
	}

	logger.Debug("chat stream completed")
}
