package kafka

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/IBM/sarama"
	"github.com/cr4all/supportservices/models"
	"github.com/labstack/gommon/log"
)

// publishQueueSize bounds the events waiting for the broker. Events
// beyond it are dropped with a warning.
const publishQueueSize = 256

// Publisher writes chat events to a topic, keyed by session id. It is a
// services.EventSink: Publish only enqueues, and a background goroutine
// delivers, so a slow or unreachable broker never holds up a request.
// Delivery failures are logged.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string

	mu     sync.RWMutex
	closed bool
	queue  chan models.ChatEvent
	done   chan struct{}
}

func NewPublisher(brokers []string, topic string, config *sarama.Config) (*Publisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	return NewPublisherWithProducer(producer, topic), nil
}

func NewPublisherWithProducer(producer sarama.SyncProducer, topic string) *Publisher {
	return newPublisher(producer, topic, publishQueueSize)
}

func newPublisher(producer sarama.SyncProducer, topic string, size int) *Publisher {
	p := &Publisher{
		producer: producer,
		topic:    topic,
		queue:    make(chan models.ChatEvent, size),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Publisher) run() {
	defer close(p.done)
	for event := range p.queue {
		if err := p.Send(event); err != nil {
			log.Errorf("Failed to publish %s for session %s: %v", event.Type, event.SessionID, err)
		}
	}
}

// Publish queues event for delivery without waiting for the broker.
func (p *Publisher) Publish(_ context.Context, event models.ChatEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		log.Warnf("Publisher closed; dropping %s for session %s", event.Type, event.SessionID)
		return
	}
	select {
	case p.queue <- event:
	default:
		log.Warnf("Publish queue full; dropping %s for session %s", event.Type, event.SessionID)
	}
}

// Send delivers event synchronously.
func (p *Publisher) Send(event models.ChatEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.SessionID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(event.Type)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return err
	}
	log.Debugf("Event %s sent to partition %d at offset %d", event.Type, partition, offset)
	return nil
}

// Close delivers the queued events, then closes the producer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.producer.Close()
}
