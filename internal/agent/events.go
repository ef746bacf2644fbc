// Package agent ties the pieces of a send-message run together: request
// validation, the event translator that forwards pipeline events to the
// wire while classifying them for storage, and the runner that drives a
// whole request end-to-end.
package agent

import "github.com/JohanValero/research-agent/internal/pipeline"

// Stream event types beyond the pipeline's own kinds.
const (
	EventStart            = "start"
	EventUserMessageSaved = "user_message_saved"
	EventAgentStart       = "agent_start"
	EventDone             = "done"
	EventError            = "error"
)

// StreamEvent is the wire shape pushed to the client, one JSON object per
// SSE line. Pipeline events pass through with their kind as the type.
type StreamEvent struct {
	Type      string            `json:"type"`
	Content   string            `json:"content,omitempty"`
	Details   *pipeline.Details `json:"details,omitempty"`
	Node      string            `json:"node,omitempty"`
	Step      string            `json:"step,omitempty"`
	MessageID string            `json:"message_id,omitempty"`
	Status    string            `json:"status,omitempty"`
}

// EmitFunc delivers one stream event to the client. An error means the
// client is unreachable; the caller must stop the run.
type EmitFunc func(StreamEvent) error

// toStreamEvent converts a pipeline event to its wire shape.
func toStreamEvent(ev pipeline.Event) StreamEvent {
	out := StreamEvent{
		Type:    string(ev.Kind),
		Content: ev.Content,
		Node:    ev.Node,
		Step:    string(ev.Step),
	}
	if ev.Details != (pipeline.Details{}) {
		details := ev.Details
		out.Details = &details
	}
	return out
}
