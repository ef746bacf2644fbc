// Package api exposes the conversation store and the streaming agent over
// HTTP: JSON CRUD for conversations and messages, an SSE chat stream, and
// health probes.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JohanValero/research-agent/internal/log"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger        log.Logger
	Conversations ConversationStore // Required
	Messages      MessageStore      // Required
	Runner        Responder         // Required
	Pool          *pgxpool.Pool     // Optional: nil degrades /ready to a liveness check
	TrustProxy    bool              // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst     int               // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Conversations == nil {
		return nil, errors.New("conversation store is required")
	}
	if cfg.Messages == nil {
		return nil, errors.New("message store is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("runner is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	convs := &conversationHandler{store: cfg.Conversations, logger: logger}
	msgs := &messageHandler{store: cfg.Messages, logger: logger}
	chat := &chatHandler{runner: cfg.Runner, logger: logger}

	mux := http.NewServeMux()

	// Streaming chat
	mux.HandleFunc("POST /api/chat/stream", chat.stream)

	// Conversation CRUD
	mux.HandleFunc("POST /api/conversations", convs.create)
	mux.HandleFunc("GET /api/conversations/{id}", convs.get)
	mux.HandleFunc("GET /api/conversations/user/{user_id}", convs.list)
	mux.HandleFunc("PATCH /api/conversations/{id}", convs.update)
	mux.HandleFunc("DELETE /api/conversations/{id}", convs.delete)

	// Message CRUD and history
	mux.HandleFunc("POST /api/messages", msgs.create)
	mux.HandleFunc("GET /api/messages/{id}", msgs.get)
	mux.HandleFunc("PUT /api/messages/{id}", msgs.update)
	mux.HandleFunc("DELETE /api/messages/{id}", msgs.delete)
	mux.HandleFunc("GET /api/conversations/{id}/messages", msgs.list)
	mux.HandleFunc("GET /api/conversations/{id}/messages/history", msgs.history)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → Logging → RateLimit → Routes
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Use a top-level mux to separate health probes from the middleware stack
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
