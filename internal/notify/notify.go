// Package notify publishes job lifecycle events. Delivery is best effort:
// callers log notifier errors and carry on.
package notify

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"

	"github.com/tendant/nd3-capture-pipeline/pkg/pipeline"
)

// Notifier publishes one event
type Notifier interface {
	Notify(ctx context.Context, ev pipeline.Event) error
}

// LogNotifier writes events to the standard logger
type LogNotifier struct{}

// Notify logs ev
func (LogNotifier) Notify(ctx context.Context, ev pipeline.Event) error {
	log.Printf("[%s] event %s%s", ev.JobID, ev.Name, formatPayload(ev.Payload))
	return nil
}

func formatPayload(p map[string]string) string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(p[k])
	}
	return b.String()
}

// Multi fans an event out to every notifier. All notifiers are attempted;
// their errors are joined.
type Multi []Notifier

// Notify delivers ev to each notifier in order
func (m Multi) Notify(ctx context.Context, ev pipeline.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events
type Nop struct{}

// Notify does nothing
func (Nop) Notify(ctx context.Context, ev pipeline.Event) error { return nil }
