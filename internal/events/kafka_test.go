package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherWritesEnvelope(t *testing.T) {
	writer := &recordingWriter{}
	publisher := newKafkaPublisher(writer, "eventcover.policy.events", zap.NewNop())

	at := time.Date(2026, 7, 4, 10, 0, 0, 0, time.UTC)
	err := publisher.Publish(context.Background(), Message{
		Type:       TypePolicyIssued,
		Key:        "123",
		OccurredAt: at,
		Data:       map[string]string{"policy_number": "POL-20260704-00001"},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(writer.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(writer.msgs))
	}
	msg := writer.msgs[0]
	if string(msg.Key) != "123" {
		t.Fatalf("expected key 123, got %s", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != TypePolicyIssued {
		t.Fatalf("expected event_type header, got %+v", msg.Headers)
	}

	var decoded struct {
		Type       string            `json:"type"`
		OccurredAt time.Time         `json:"occurred_at"`
		Data       map[string]string `json:"data"`
	}
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if decoded.Type != TypePolicyIssued || !decoded.OccurredAt.Equal(at) {
		t.Fatalf("unexpected envelope %+v", decoded)
	}
	if decoded.Data["policy_number"] != "POL-20260704-00001" {
		t.Fatalf("unexpected data %v", decoded.Data)
	}

	if err := publisher.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer to be closed")
	}
}

func TestKafkaPublisherReturnsWriteError(t *testing.T) {
	writer := &recordingWriter{err: errors.New("broker down")}
	publisher := newKafkaPublisher(writer, "topic", zap.NewNop())

	if err := publisher.Publish(context.Background(), Message{Type: TypePaymentFailed, Key: "1"}); err == nil {
		t.Fatalf("expected write error")
	}
	if err := publisher.Publish(context.Background()); err != nil {
		t.Fatalf("expected empty publish to be a no-op, got %v", err)
	}
}
