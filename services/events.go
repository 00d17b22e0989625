package services

import (
	"context"

	"github.com/cr4all/supportservices/models"
)

// EventSink receives every committed chat change. Publish must not block
// the request for long and reports failures through its own logging.
type EventSink interface {
	Publish(ctx context.Context, event models.ChatEvent)
}

type EventSinkFunc func(ctx context.Context, event models.ChatEvent)

func (f EventSinkFunc) Publish(ctx context.Context, event models.ChatEvent) { f(ctx, event) }

type multiSink []EventSink

func (m multiSink) Publish(ctx context.Context, event models.ChatEvent) {
	for _, sink := range m {
		sink.Publish(ctx, event)
	}
}

// Sinks combines sinks into one, skipping nil entries.
func Sinks(sinks ...EventSink) EventSink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
