// Package pipeline implements the staged response engine: Analyze →
// Research → Generate → Finalize, executed in fixed order with no
// branching. Each stage emits zero or more events through a caller-supplied
// callback; events from a later stage are never emitted before an earlier
// stage has finished.
//
// Stage-internal failures are absorbed: the stage emits a fallback event
// and the run advances. Only emit-callback errors (the client is gone) and
// context cancellation abort a run.
package pipeline

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JohanValero/research-agent/internal/i18n"
	"github.com/JohanValero/research-agent/internal/llm"
)

// Step labels the pipeline's position, advanced by each stage.
type Step string

// Pipeline steps, in execution order.
const (
	StepStarting          Step = "starting"
	StepQueryAnalyzed     Step = "query_analyzed"
	StepResearching       Step = "researching"
	StepGenerating        Step = "generating"
	StepResponseGenerated Step = "response_generated"
	StepFinalizing        Step = "finalizing"
	StepCompleted         Step = "completed"
)

// Stage node names carried on events for wire observability.
const (
	nodeAnalyze  = "analyze_query"
	nodeResearch = "research"
	nodeGenerate = "generate_response"
	nodeFinalize = "finalize"
)

// EventKind is the closed set of pipeline event kinds. The translator's
// classification table is exhaustive over these three values.
type EventKind string

// Event kinds.
const (
	// KindThought carries internal reasoning or progress content that is
	// persisted as a thought fragment.
	KindThought EventKind = "thought"

	// KindText carries answer content, either incremental chunks or whole
	// messages, persisted as text fragments.
	KindText EventKind = "text"

	// KindStatus carries progress notices that are forwarded to the wire
	// and never persisted.
	KindStatus EventKind = "status"
)

// Details carries per-event metadata. Zero-valued fields are omitted from
// the wire.
type Details struct {
	// Step is the stage-internal label (e.g. "analysis_complete"), distinct
	// from the pipeline-level Step on the event.
	Step        string `json:"step,omitempty"`
	QueryLength int    `json:"query_length,omitempty"`
	IsChunk     bool   `json:"is_chunk,omitempty"`
	Final       bool   `json:"final,omitempty"`
	TotalLength int    `json:"total_length,omitempty"`
	Check       string `json:"check,omitempty"`
	Status      string `json:"status,omitempty"`
	TotalSteps  int    `json:"total_steps,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Event is one emission from a pipeline stage.
type Event struct {
	Kind    EventKind
	Content string
	Node    string
	Step    Step
	Details Details
}

// Turn is one prior conversation turn passed as model context.
type Turn struct {
	Role    string
	Content string
}

// State is the fixed-field pipeline state. Stages receive it by value and
// the engine returns the advanced copy.
type State struct {
	Query          string
	UserID         uuid.UUID
	ConversationID uuid.UUID
	Step           Step
	History        []Turn
}

// CompletionClient is the subset of the completion backend the engine
// needs. *llm.Client satisfies it; tests supply fakes.
type CompletionClient interface {
	GenerateOnce(ctx context.Context, prompt, systemPrompt string, temperature float64, maxTokens int) (string, error)
	GenerateStream(ctx context.Context, messages []llm.Message, temperature float64, maxTokens int) iter.Seq2[string, error]
}

// EmitFunc receives each event in emission order. Returning an error aborts
// the run; the engine stops emitting immediately.
type EmitFunc func(Event) error

// Analyze-stage request bounds. Low temperature for consistent
// classification, short output.
const (
	analyzeTemperature = 0.3
	analyzeMaxTokens   = 300
)

// defaultPacing is the delay between finalize status events, matching the
// presentation rhythm clients expect.
const defaultPacing = 300 * time.Millisecond

// Config configures the pipeline engine.
type Config struct {
	Client CompletionClient

	// Temperature and MaxTokens bound the Generate stage.
	Temperature float64
	MaxTokens   int

	// Pacing is the delay between finalize events. Zero uses the default.
	Pacing time.Duration

	Logger *slog.Logger
}

// Engine runs the four-stage response pipeline.
//
// Engine is safe for concurrent use; each Run carries its own state.
type Engine struct {
	client      CompletionClient
	temperature float64
	maxTokens   int
	pacing      time.Duration
	logger      *slog.Logger
}

// New creates a pipeline engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("pipeline: completion client is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pacing := cfg.Pacing
	if pacing == 0 {
		pacing = defaultPacing
	}
	return &Engine{
		client:      cfg.Client,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		pacing:      pacing,
		logger:      logger,
	}, nil
}

// Run executes the four stages in order. The returned state carries the
// final step label. A non-nil error means the run was aborted (emit failed
// or ctx canceled) and downstream stages did not execute.
func (e *Engine) Run(ctx context.Context, state State, emit EmitFunc) (State, error) {
	state.Step = StepStarting

	stages := []func(context.Context, State, EmitFunc) (State, error){
		e.analyze,
		e.research,
		e.generate,
		e.finalize,
	}
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		next, err := stage(ctx, state, emit)
		if err != nil {
			return state, err
		}
		state = next
	}

	e.logger.Info("pipeline run completed",
		"conversation_id", state.ConversationID,
		"user_id", state.UserID)
	return state, nil
}

// analyze issues one low-temperature completion summarizing intent and
// keywords, emitting the summary as a thought. On backend failure it falls
// back to a thought echoing the raw query and the run continues.
func (e *Engine) analyze(ctx context.Context, state State, emit EmitFunc) (State, error) {
	state.Step = StepQueryAnalyzed

	analysis, err := e.client.GenerateOnce(ctx,
		i18n.Sprintf("pipeline.analyze.prompt", state.Query),
		i18n.T("pipeline.analyze.system_prompt"),
		analyzeTemperature, analyzeMaxTokens)
	if err != nil {
		e.logger.Error("query analysis failed", "error", err)
		return state, emit(Event{
			Kind:    KindThought,
			Content: i18n.Sprintf("pipeline.analyze.fallback", state.Query),
			Node:    nodeAnalyze,
			Step:    state.Step,
			Details: Details{Step: "analysis_fallback"},
		})
	}

	e.logger.Info("query analysis completed", "query_length", len(state.Query))
	return state, emit(Event{
		Kind:    KindThought,
		Content: i18n.Sprintf("pipeline.analyze.complete", analysis),
		Node:    nodeAnalyze,
		Step:    state.Step,
		Details: Details{Step: "analysis_complete", QueryLength: len(state.Query)},
	})
}

// research announces the start of source lookup. This is the extension
// point for multi-source retrieval; the minimal form emits one event.
func (e *Engine) research(_ context.Context, state State, emit EmitFunc) (State, error) {
	state.Step = StepResearching

	return state, emit(Event{
		Kind:    KindThought,
		Content: i18n.Sprintf("pipeline.research.start", state.Query),
		Node:    nodeResearch,
		Step:    state.Step,
		Details: Details{Step: "research_start"},
	})
}

// generate streams the answer. Every backend delta is forwarded as one
// chunk event with no coalescing, followed by an empty terminal event
// carrying the accumulated length. A backend failure is absorbed into a
// single user-visible text event; the stage still completes.
func (e *Engine) generate(ctx context.Context, state State, emit EmitFunc) (State, error) {
	state.Step = StepGenerating

	if err := emit(Event{
		Kind:    KindStatus,
		Content: i18n.T("pipeline.generate.preparing"),
		Node:    nodeGenerate,
		Step:    state.Step,
		Details: Details{Step: "response_preparation"},
	}); err != nil {
		return state, err
	}

	messages := make([]llm.Message, 0, len(state.History)+2)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: i18n.T("pipeline.generate.system_prompt"),
	})
	for _, turn := range state.History {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: state.Query})

	totalLength := 0
	for chunk, err := range e.client.GenerateStream(ctx, messages, e.temperature, e.maxTokens) {
		if err != nil {
			e.logger.Error("response generation failed", "error", err)
			state.Step = StepResponseGenerated
			return state, emit(Event{
				Kind:    KindText,
				Content: i18n.Sprintf("pipeline.generate.failed", err.Error()),
				Node:    nodeGenerate,
				Step:    state.Step,
				Details: Details{Step: "response_error", Error: err.Error()},
			})
		}
		totalLength += len(chunk)
		if err := emit(Event{
			Kind:    KindText,
			Content: chunk,
			Node:    nodeGenerate,
			Step:    state.Step,
			Details: Details{Step: "streaming_response", IsChunk: true},
		}); err != nil {
			return state, err
		}
	}

	e.logger.Info("response generated", "total_length", totalLength)
	state.Step = StepResponseGenerated
	return state, emit(Event{
		Kind:    KindText,
		Content: "",
		Node:    nodeGenerate,
		Step:    state.Step,
		Details: Details{Step: "response_complete", TotalLength: totalLength, Final: true},
	})
}

// finalize emits the fixed validation/completion status sequence with a
// pacing delay. Status events reach the wire but are never persisted.
func (e *Engine) finalize(ctx context.Context, state State, emit EmitFunc) (State, error) {
	state.Step = StepFinalizing

	if err := emit(Event{
		Kind:    KindStatus,
		Content: i18n.T("pipeline.finalize.validating"),
		Node:    nodeFinalize,
		Step:    state.Step,
		Details: Details{Step: "finalizing", Check: "quality"},
	}); err != nil {
		return state, err
	}

	select {
	case <-ctx.Done():
		return state, ctx.Err()
	case <-time.After(e.pacing):
	}

	state.Step = StepCompleted
	return state, emit(Event{
		Kind:    KindStatus,
		Content: i18n.T("pipeline.finalize.done"),
		Node:    nodeFinalize,
		Step:    state.Step,
		Details: Details{Step: "finalization_complete", Status: "success", TotalSteps: 4},
	})
}
