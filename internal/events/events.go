package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/lherron/dirsync/internal/plan"
)

// Event is one line of the audit trail written during an apply run.
type Event struct {
	Timestamp    time.Time          `json:"ts"`
	RunID        string             `json:"run_id"`
	ResourceType plan.Entity        `json:"resource_type"`
	ResourceKey  string             `json:"resource_key"`
	InternalID   int64              `json:"internal_id,omitempty"`
	EventType    string             `json:"event_type"`
	Changes      []plan.FieldChange `json:"changes,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// Writer handles writing events to the audit trail as JSON lines.
// A nil *Writer discards everything.
type Writer struct {
	mu    sync.Mutex
	out   io.Writer
	runID string
	now   func() time.Time
}

// NewWriter creates a new event writer
func NewWriter(out io.Writer, runID string) *Writer {
	return &Writer{out: out, runID: runID, now: time.Now}
}

// LogEvent writes an event to the audit trail
func (w *Writer) LogEvent(event *Event) error {
	if w == nil || w.out == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = w.now().UTC()
	}
	if event.RunID == "" {
		event.RunID = w.runID
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if _, err := w.out.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// LogAction records the outcome of an executed action.
func (w *Writer) LogAction(a plan.Action) error {
	eventType := fmt.Sprintf("%s.%s", a.Entity, pastTense(a.Kind))
	if a.Failed {
		eventType = fmt.Sprintf("%s.%s_failed", a.Entity, a.Kind)
	}
	return w.LogEvent(&Event{
		ResourceType: a.Entity,
		ResourceKey:  a.Key,
		InternalID:   a.InternalID,
		EventType:    eventType,
		Changes:      a.Changes,
		Error:        a.Error,
	})
}

// LogRunFinished records the end of a run with its plan revision.
func (w *Writer) LogRunFinished(s *plan.Summary) error {
	return w.LogEvent(&Event{
		ResourceType: "run",
		ResourceKey:  s.PlanRev,
		EventType:    "run.finished",
		Changes: []plan.FieldChange{
			{Field: "mode", New: string(s.Mode)},
			{Field: "summary", New: plan.FormatText(s)},
		},
	})
}

func pastTense(k plan.Kind) string {
	switch k {
	case plan.KindInsert:
		return "created"
	case plan.KindUpdate:
		return "updated"
	case plan.KindSkipped:
		return "skipped"
	default:
		return string(k)
	}
}
