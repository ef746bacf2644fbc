package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JohanValero/research-agent/internal/i18n"
	"github.com/JohanValero/research-agent/internal/pipeline"
	"github.com/JohanValero/research-agent/internal/store"
)

// Store is the subset of the conversation store the runner needs.
type Store interface {
	GetConversation(ctx context.Context, id uuid.UUID) (*store.Conversation, error)
	Append(ctx context.Context, params store.AppendParams) (*store.Message, error)
	LastN(ctx context.Context, conversationID uuid.UUID, n int) ([]store.Turn, error)
}

// Engine runs the staged response pipeline. *pipeline.Engine satisfies it.
type Engine interface {
	Run(ctx context.Context, state pipeline.State, emit pipeline.EmitFunc) (pipeline.State, error)
}

// Runner drives one send-message request end-to-end: persist the human
// turn, load context, run the pipeline streaming every event to the
// client, then persist the collected agent turn.
type Runner struct {
	store        Store
	engine       Engine
	logger       *slog.Logger
	historyLimit int
}

// NewRunner creates a runner.
func NewRunner(s Store, e Engine, historyLimit int, logger *slog.Logger) (*Runner, error) {
	if s == nil {
		return nil, errors.New("agent: store is required")
	}
	if e == nil {
		return nil, errors.New("agent: engine is required")
	}
	if historyLimit <= 0 {
		return nil, fmt.Errorf("agent: history limit must be positive, got %d", historyLimit)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{store: s, engine: e, logger: logger, historyLimit: historyLimit}, nil
}

// Respond executes a validated send-message request against an open event
// stream.
//
// Domain failures (missing conversation, storage errors) terminate the
// stream with an error event and return nil: the stream itself is the
// error channel once it is open. A non-nil return means the client is
// unreachable or the context was canceled; in that case nothing collected
// during the run is persisted.
func (r *Runner) Respond(ctx context.Context, req SendMessageRequest, emit EmitFunc) error {
	logger := r.logger.With("conversation_id", req.ConversationID)

	if err := emit(StreamEvent{Type: EventStart}); err != nil {
		return err
	}

	conv, err := r.store.GetConversation(ctx, req.ConversationID)
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			logger.Warn("send message to unknown conversation")
			return emit(StreamEvent{Type: EventError, Content: i18n.T("stream.conversation_not_found")})
		}
		logger.Error("conversation lookup failed", "error", err)
		return emit(StreamEvent{Type: EventError, Content: i18n.Sprintf("stream.internal_error", err.Error())})
	}

	humanMsg, err := r.store.Append(ctx, store.AppendParams{
		ConversationID:    req.ConversationID,
		PreviousMessageID: req.PreviousMessageID,
		Author:            store.AuthorHuman,
		Fragments:         req.Fragments,
	})
	if err != nil {
		if errors.Is(err, store.ErrMessageNotFound) {
			logger.Warn("previous message not found", "previous_message_id", req.PreviousMessageID)
			return emit(StreamEvent{Type: EventError, Content: i18n.T("stream.previous_not_found")})
		}
		logger.Error("failed to save user message", "error", err)
		return emit(StreamEvent{Type: EventError, Content: i18n.Sprintf("stream.internal_error", err.Error())})
	}
	logger.Info("user message saved", "message_id", humanMsg.ID)

	if err := emit(StreamEvent{Type: EventUserMessageSaved, MessageID: humanMsg.ID.String()}); err != nil {
		return err
	}

	// Context is loaded after the user message is saved, so the history
	// already contains the current query as its newest turn. Failure here
	// degrades to an uncontextualized answer, it does not stop the run.
	history, err := r.store.LastN(ctx, req.ConversationID, r.historyLimit)
	if err != nil {
		logger.Warn("failed to load history, continuing without context", "error", err)
		history = nil
	}

	if err := emit(StreamEvent{Type: EventAgentStart, Content: i18n.T("stream.agent_start")}); err != nil {
		return err
	}

	turns := make([]pipeline.Turn, len(history))
	for i, h := range history {
		turns[i] = pipeline.Turn{Role: h.Role, Content: h.Content}
	}

	var collector Collector
	_, runErr := r.engine.Run(ctx, pipeline.State{
		Query:          req.Query(),
		UserID:         conv.UserID,
		ConversationID: req.ConversationID,
		History:        turns,
	}, func(ev pipeline.Event) error {
		// Wire first: per-fragment latency passes straight through.
		if err := emit(toStreamEvent(ev)); err != nil {
			return err
		}
		collector.Add(ev)
		return nil
	})
	if runErr != nil {
		// Client gone or canceled: discard everything collected, the
		// agent turn must not be half-persisted.
		logger.Info("pipeline run aborted, nothing persisted", "error", runErr)
		return runErr
	}

	agentMsg, err := r.store.Append(ctx, store.AppendParams{
		ConversationID:    req.ConversationID,
		PreviousMessageID: &humanMsg.ID,
		Author:            store.AuthorAgent,
		Fragments:         collector.Fragments(),
	})
	if err != nil {
		logger.Error("failed to save agent message", "error", err)
		return emit(StreamEvent{Type: EventError, Content: i18n.T("stream.save_failed")})
	}
	logger.Info("agent message saved",
		"message_id", agentMsg.ID,
		"fragments", len(agentMsg.Fragments))

	return emit(StreamEvent{Type: EventDone, MessageID: agentMsg.ID.String(), Status: "success"})
}
