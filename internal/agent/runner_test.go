package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/JohanValero/research-agent/internal/log"
	"github.com/JohanValero/research-agent/internal/pipeline"
	"github.com/JohanValero/research-agent/internal/store"
)

// fakeStore is an in-memory Store with injectable failures.
type fakeStore struct {
	conversations map[uuid.UUID]*store.Conversation
	messages      map[uuid.UUID]*store.Message
	appended      []*store.Message

	appendErr error
	lastNErr  error
	lastN     []store.Turn
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[uuid.UUID]*store.Conversation),
		messages:      make(map[uuid.UUID]*store.Message),
	}
}

func (f *fakeStore) addConversation(userID uuid.UUID) uuid.UUID {
	id := uuid.New()
	f.conversations[id] = &store.Conversation{ID: id, UserID: userID, Active: true}
	return id
}

func (f *fakeStore) GetConversation(_ context.Context, id uuid.UUID) (*store.Conversation, error) {
	conv, ok := f.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, store.ErrConversationNotFound)
	}
	return conv, nil
}

func (f *fakeStore) Append(_ context.Context, params store.AppendParams) (*store.Message, error) {
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	if _, ok := f.conversations[params.ConversationID]; !ok {
		return nil, fmt.Errorf("conversation %s: %w", params.ConversationID, store.ErrConversationNotFound)
	}
	if params.PreviousMessageID != nil {
		if _, ok := f.messages[*params.PreviousMessageID]; !ok {
			return nil, fmt.Errorf("message %s: %w", *params.PreviousMessageID, store.ErrMessageNotFound)
		}
	}
	msg := &store.Message{
		ID:                uuid.New(),
		ConversationID:    params.ConversationID,
		PreviousMessageID: params.PreviousMessageID,
		Author:            params.Author,
		Fragments:         params.Fragments,
	}
	f.messages[msg.ID] = msg
	f.appended = append(f.appended, msg)
	return msg, nil
}

func (f *fakeStore) LastN(_ context.Context, _ uuid.UUID, _ int) ([]store.Turn, error) {
	if f.lastNErr != nil {
		return nil, f.lastNErr
	}
	return f.lastN, nil
}

// fakeEngine replays scripted events through the emit callback.
type fakeEngine struct {
	events   []pipeline.Event
	gotState pipeline.State
}

func (f *fakeEngine) Run(_ context.Context, state pipeline.State, emit pipeline.EmitFunc) (pipeline.State, error) {
	f.gotState = state
	for _, ev := range f.events {
		if err := emit(ev); err != nil {
			return state, err
		}
	}
	state.Step = pipeline.StepCompleted
	return state, nil
}

func newTestRunner(t *testing.T, s Store, e Engine) *Runner {
	t.Helper()
	r, err := NewRunner(s, e, 10, log.NewNop())
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	return r
}

func collectStream(t *testing.T, r *Runner, req SendMessageRequest) []StreamEvent {
	t.Helper()
	var events []StreamEvent
	err := r.Respond(context.Background(), req, func(ev StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	return events
}

func TestRespondHappyPath(t *testing.T) {
	fs := newFakeStore()
	convID := fs.addConversation(uuid.New())

	engine := &fakeEngine{events: []pipeline.Event{
		{Kind: pipeline.KindThought, Content: "analysis", Node: "analyze_query", Step: pipeline.StepQueryAnalyzed},
		{Kind: pipeline.KindText, Content: "chunk1 ", Details: pipeline.Details{IsChunk: true}},
		{Kind: pipeline.KindText, Content: "chunk2", Details: pipeline.Details{IsChunk: true}},
		{Kind: pipeline.KindStatus, Content: "done", Details: pipeline.Details{Status: "success"}},
	}}
	r := newTestRunner(t, fs, engine)

	req := SendMessageRequest{
		ConversationID: convID,
		Author:         store.AuthorHuman,
		Fragments:      []store.Fragment{{Kind: store.FragmentText, Content: "a question"}},
	}
	events := collectStream(t, r, req)

	// start, user_message_saved, agent_start, 4 pipeline events, done.
	if len(events) != 8 {
		t.Fatalf("expected 8 events, got %d: %+v", len(events), events)
	}
	if events[0].Type != EventStart {
		t.Errorf("first event = %s, want start", events[0].Type)
	}
	if events[1].Type != EventUserMessageSaved || events[1].MessageID == "" {
		t.Errorf("event 1 = %+v, want user_message_saved with id", events[1])
	}
	if events[2].Type != EventAgentStart {
		t.Errorf("event 2 = %s, want agent_start", events[2].Type)
	}
	done := events[len(events)-1]
	if done.Type != EventDone || done.Status != "success" || done.MessageID == "" {
		t.Errorf("final event = %+v, want done/success with id", done)
	}

	// Two persisted turns: human then agent, chained.
	if len(fs.appended) != 2 {
		t.Fatalf("expected 2 appends, got %d", len(fs.appended))
	}
	human, agentMsg := fs.appended[0], fs.appended[1]
	if human.Author != store.AuthorHuman {
		t.Errorf("first append author = %s, want HUMAN", human.Author)
	}
	if agentMsg.Author != store.AuthorAgent {
		t.Errorf("second append author = %s, want AGENT", agentMsg.Author)
	}
	if agentMsg.PreviousMessageID == nil || *agentMsg.PreviousMessageID != human.ID {
		t.Errorf("agent message must link back to the human message")
	}

	// Collected fragments: the thought plus the joined chunks.
	if len(agentMsg.Fragments) != 2 {
		t.Fatalf("agent fragments = %+v", agentMsg.Fragments)
	}
	if agentMsg.Fragments[1].Content != "chunk1 chunk2" {
		t.Errorf("joined text = %q", agentMsg.Fragments[1].Content)
	}
}

func TestRespondConversationNotFound(t *testing.T) {
	fs := newFakeStore()
	r := newTestRunner(t, fs, &fakeEngine{})

	req := SendMessageRequest{
		ConversationID: uuid.New(),
		Author:         store.AuthorHuman,
		Fragments:      []store.Fragment{{Kind: store.FragmentText, Content: "q"}},
	}
	events := collectStream(t, r, req)

	last := events[len(events)-1]
	if last.Type != EventError {
		t.Errorf("expected terminal error event, got %+v", last)
	}
	if len(fs.appended) != 0 {
		t.Errorf("nothing must be persisted, got %d appends", len(fs.appended))
	}
}

func TestRespondPreviousMessageNotFound(t *testing.T) {
	fs := newFakeStore()
	convID := fs.addConversation(uuid.New())
	phantom := uuid.New()
	r := newTestRunner(t, fs, &fakeEngine{})

	req := SendMessageRequest{
		ConversationID:    convID,
		PreviousMessageID: &phantom,
		Author:            store.AuthorHuman,
		Fragments:         []store.Fragment{{Kind: store.FragmentText, Content: "q"}},
	}
	events := collectStream(t, r, req)

	last := events[len(events)-1]
	if last.Type != EventError {
		t.Errorf("expected terminal error event, got %+v", last)
	}
}

func TestRespondHistoryFailureDegrades(t *testing.T) {
	fs := newFakeStore()
	convID := fs.addConversation(uuid.New())
	fs.lastNErr = errors.New("index rebuilding")

	engine := &fakeEngine{}
	r := newTestRunner(t, fs, engine)

	req := SendMessageRequest{
		ConversationID: convID,
		Author:         store.AuthorHuman,
		Fragments:      []store.Fragment{{Kind: store.FragmentText, Content: "q"}},
	}
	events := collectStream(t, r, req)

	if events[len(events)-1].Type != EventDone {
		t.Errorf("run must complete without context, got %+v", events[len(events)-1])
	}
	if len(engine.gotState.History) != 0 {
		t.Errorf("engine must receive empty history, got %d turns", len(engine.gotState.History))
	}
}

func TestRespondPassesContextToEngine(t *testing.T) {
	userID := uuid.New()
	fs := newFakeStore()
	convID := fs.addConversation(userID)
	fs.lastN = []store.Turn{
		{Role: store.RoleUser, Content: "before"},
		{Role: store.RoleAssistant, Content: "answer"},
	}

	engine := &fakeEngine{}
	r := newTestRunner(t, fs, engine)

	req := SendMessageRequest{
		ConversationID: convID,
		Author:         store.AuthorHuman,
		Fragments:      []store.Fragment{{Kind: store.FragmentText, Content: "the query"}},
	}
	collectStream(t, r, req)

	if engine.gotState.Query != "the query" {
		t.Errorf("state query = %q", engine.gotState.Query)
	}
	if engine.gotState.UserID != userID {
		t.Errorf("state user id = %s, want %s", engine.gotState.UserID, userID)
	}
	if engine.gotState.ConversationID != convID {
		t.Errorf("state conversation id = %s, want %s", engine.gotState.ConversationID, convID)
	}
	if len(engine.gotState.History) != 2 {
		t.Errorf("state history = %+v", engine.gotState.History)
	}
}

func TestRespondClientGoneNothingPersisted(t *testing.T) {
	fs := newFakeStore()
	convID := fs.addConversation(uuid.New())

	engine := &fakeEngine{events: []pipeline.Event{
		{Kind: pipeline.KindText, Content: "chunk", Details: pipeline.Details{IsChunk: true}},
	}}
	r := newTestRunner(t, fs, engine)

	clientGone := errors.New("broken pipe")
	count := 0
	err := r.Respond(context.Background(), SendMessageRequest{
		ConversationID: convID,
		Author:         store.AuthorHuman,
		Fragments:      []store.Fragment{{Kind: store.FragmentText, Content: "q"}},
	}, func(ev StreamEvent) error {
		count++
		if ev.Type == "text" {
			return clientGone
		}
		return nil
	})
	if !errors.Is(err, clientGone) {
		t.Fatalf("Respond error = %v, want client disconnect", err)
	}

	// Only the human message was persisted before the disconnect; the
	// agent turn must not be.
	for _, msg := range fs.appended {
		if msg.Author == store.AuthorAgent {
			t.Errorf("agent message persisted after disconnect: %+v", msg)
		}
	}
}

func TestRespondAgentSaveFailure(t *testing.T) {
	fs := newFakeStore()
	convID := fs.addConversation(uuid.New())
	engine := &fakeEngine{events: []pipeline.Event{
		{Kind: pipeline.KindText, Content: "x", Details: pipeline.Details{IsChunk: true}},
	}}
	r := newTestRunner(t, fs, engine)

	// Fail appends after the human turn is stored.
	req := SendMessageRequest{
		ConversationID: convID,
		Author:         store.AuthorHuman,
		Fragments:      []store.Fragment{{Kind: store.FragmentText, Content: "q"}},
	}
	var events []StreamEvent
	err := r.Respond(context.Background(), req, func(ev StreamEvent) error {
		events = append(events, ev)
		if ev.Type == EventUserMessageSaved {
			fs.appendErr = errors.New("disk full")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}

	last := events[len(events)-1]
	if last.Type != EventError {
		t.Errorf("expected terminal error event after save failure, got %+v", last)
	}
}

func TestRespondPlaceholderWhenPipelineSilent(t *testing.T) {
	fs := newFakeStore()
	convID := fs.addConversation(uuid.New())
	engine := &fakeEngine{events: []pipeline.Event{
		{Kind: pipeline.KindStatus, Content: "only status"},
	}}
	r := newTestRunner(t, fs, engine)

	collectStream(t, r, SendMessageRequest{
		ConversationID: convID,
		Author:         store.AuthorHuman,
		Fragments:      []store.Fragment{{Kind: store.FragmentText, Content: "q"}},
	})

	agentMsg := fs.appended[len(fs.appended)-1]
	if len(agentMsg.Fragments) != 1 || agentMsg.Fragments[0].Kind != store.FragmentText {
		t.Errorf("expected single placeholder fragment, got %+v", agentMsg.Fragments)
	}
}
