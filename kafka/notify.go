package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/cr4all/supportservices/models"
	"github.com/labstack/gommon/log"
)

// NotifyHandler tells operators about visitor activity read from the
// event log: new sessions and new visitor messages.
type NotifyHandler struct {
	notify func(text string)
}

// NewNotifyHandler writes notices through notify, or the gommon logger
// when notify is nil.
func NewNotifyHandler(notify func(text string)) *NotifyHandler {
	if notify == nil {
		notify = func(text string) { log.Info(text) }
	}
	return &NotifyHandler{notify: notify}
}

func (h *NotifyHandler) Handle(_ context.Context, message *sarama.ConsumerMessage) error {
	var event models.ChatEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		// A malformed record would be redelivered forever; skip it.
		log.Warnf("Skipping malformed event at offset %d: %v", message.Offset, err)
		return nil
	}

	switch event.Type {
	case models.EventSessionCreated:
		h.notify(fmt.Sprintf("new chat session %s", event.SessionID))
	case models.EventMessageCreated:
		if event.Message == nil || event.Message.Sender != models.SenderVisitor {
			return nil
		}
		h.notify(fmt.Sprintf("visitor message in %s: %s", event.SessionID, preview(event.Message.Content, 80)))
	}
	return nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
