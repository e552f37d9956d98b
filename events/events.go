// Package events publishes lifecycle notifications after a unit of work has
// committed. Delivery is best effort: a failed publish is logged and never
// undoes the committed change.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Type string

const (
	ModuleStatusChanged Type = "module.status_changed"
	ModuleClosed        Type = "module.closed"
	ModuleCompleted     Type = "module.completed"
	RelationChanged     Type = "relation.changed"
)

// Event is the wire shape of a notification.
type Event struct {
	Type       Type      `json:"type"`
	ModuleID   int64     `json:"module_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Codes      []string  `json:"codes,omitempty"`
	Operation  string    `json:"operation,omitempty"`
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Key groups events of one aggregate so brokers keep them in order.
func (e Event) Key() string {
	if e.ModuleID != 0 {
		return "module-" + strconv.FormatInt(e.ModuleID, 10)
	}
	if len(e.Codes) > 0 {
		return e.Codes[0]
	}
	return string(e.Type)
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Notify publishes evt and logs, rather than returns, any failure.
func Notify(ctx context.Context, pub Publisher, logger *zap.Logger, evt Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, evt); err != nil {
		logger.Warn("event publish failed",
			zap.String("type", string(evt.Type)),
			zap.Int64("module_id", evt.ModuleID),
			zap.Strings("codes", evt.Codes),
			zap.Error(err),
		)
	}
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
