package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

type KafkaPublisher struct {
	writer messageWriter
	topic  string
	log    *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}, topic, log)
}

func newKafkaPublisher(writer messageWriter, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		topic:  topic,
		log:    log.Named("events.kafka"),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}

	out := make([]kafka.Message, 0, len(msgs))
	for _, msg := range msgs {
		value, err := json.Marshal(envelope{
			Type:       msg.Type,
			OccurredAt: msg.OccurredAt.UTC(),
			Data:       msg.Data,
		})
		if err != nil {
			return err
		}
		out = append(out, kafka.Message{
			Key:   []byte(msg.Key),
			Value: value,
			Time:  msg.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(msg.Type)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, out...); err != nil {
		p.log.Warn("failed to publish lifecycle events",
			zap.String("topic", p.topic),
			zap.Int("count", len(out)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
