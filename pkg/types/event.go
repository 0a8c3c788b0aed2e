package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AlertEvent is one normalized alert produced from a matched trap.
// It is immutable once built; handlers are copied on construction.
type AlertEvent struct {
	// ID identifies the event in logs, the API and the live stream.
	// It is not part of the wire document.
	ID string `json:"id"`

	Name     string   `json:"name"`
	Output   string   `json:"output"`
	Severity Severity `json:"status"`
	Handlers []string `json:"handlers"`

	// Rule is the id of the rule that produced the event.
	Rule string `json:"rule,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// wireEvent is the exact document accepted by the client socket.
type wireEvent struct {
	Name     string   `json:"name"`
	Output   string   `json:"output"`
	Status   int      `json:"status"`
	Handlers []string `json:"handlers"`
}

// NewAlertEvent builds an event with a fresh ID.
func NewAlertEvent(name, output string, sev Severity, handlers []string) *AlertEvent {
	h := make([]string, len(handlers))
	copy(h, handlers)
	return &AlertEvent{
		ID:        uuid.NewString(),
		Name:      name,
		Output:    output,
		Severity:  sev,
		Handlers:  h,
		CreatedAt: time.Now().UTC(),
	}
}

// MarshalWire encodes the event as one JSON document terminated by '\n'.
func (e *AlertEvent) MarshalWire() ([]byte, error) {
	handlers := e.Handlers
	if handlers == nil {
		handlers = []string{}
	}
	b, err := json.Marshal(wireEvent{
		Name:     e.Name,
		Output:   e.Output,
		Status:   int(e.Severity),
		Handlers: handlers,
	})
	if err != nil {
		return nil, fmt.Errorf("types: marshal event %s: %w", e.ID, err)
	}
	return append(b, '\n'), nil
}

func (e *AlertEvent) String() string {
	return fmt.Sprintf("<AlertEvent %s name=%q status=%d>", e.ID, e.Name, int(e.Severity))
}
