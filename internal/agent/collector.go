package agent

import (
	"strings"

	"github.com/JohanValero/research-agent/internal/i18n"
	"github.com/JohanValero/research-agent/internal/pipeline"
	"github.com/JohanValero/research-agent/internal/store"
)

// Collector classifies pipeline events into durable fragments:
//
//   - thought events with non-blank content become thought fragments
//     immediately, one per event
//   - text chunk events accumulate into a running buffer, flushed as one
//     trailing text fragment
//   - text non-chunk events with non-blank content become text fragments
//     immediately
//   - status events are never persisted
//
// Not safe for concurrent use; a run feeds it from a single goroutine.
type Collector struct {
	fragments []store.Fragment
	buffer    strings.Builder
}

// Add classifies one event.
func (c *Collector) Add(ev pipeline.Event) {
	switch ev.Kind {
	case pipeline.KindThought:
		if strings.TrimSpace(ev.Content) != "" {
			c.fragments = append(c.fragments, store.Fragment{
				Kind:    store.FragmentThought,
				Content: ev.Content,
			})
		}
	case pipeline.KindText:
		if ev.Details.IsChunk {
			// Chunks are kept verbatim, whitespace included, so the
			// persisted text equals the streamed bytes.
			if len(ev.Content) > 0 {
				c.buffer.WriteString(ev.Content)
			}
			return
		}
		if strings.TrimSpace(ev.Content) != "" {
			c.fragments = append(c.fragments, store.Fragment{
				Kind:    store.FragmentText,
				Content: ev.Content,
			})
		}
	case pipeline.KindStatus:
		// Forwarded to the wire, never persisted.
	}
}

// Fragments flushes the chunk buffer as one trailing text fragment and
// returns the collected set. An empty result is replaced by the localized
// placeholder so no agent message is ever persisted without fragments.
func (c *Collector) Fragments() []store.Fragment {
	fragments := c.fragments
	if c.buffer.Len() > 0 {
		fragments = append(fragments, store.Fragment{
			Kind:    store.FragmentText,
			Content: c.buffer.String(),
		})
	}
	if len(fragments) == 0 {
		fragments = []store.Fragment{{
			Kind:    store.FragmentText,
			Content: i18n.T("pipeline.placeholder"),
		}}
	}
	return fragments
}
