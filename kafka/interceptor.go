package kafka

import "github.com/IBM/sarama"

const SourceHeader = "source"

// SourceInterceptor stamps every outgoing record with the name of the
// process that produced it.
type SourceInterceptor struct {
	source string
}

func NewSourceInterceptor(source string) *SourceInterceptor {
	return &SourceInterceptor{source: source}
}

func (i *SourceInterceptor) OnSend(msg *sarama.ProducerMessage) {
	for _, h := range msg.Headers {
		if string(h.Key) == SourceHeader {
			return
		}
	}
	msg.Headers = append(msg.Headers, sarama.RecordHeader{
		Key:   []byte(SourceHeader),
		Value: []byte(i.source),
	})
}
