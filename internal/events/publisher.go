// Package events publishes policy lifecycle notifications for downstream
// consumers such as confirmation mail and activation workflows.
package events

import (
	"context"
	"time"
)

const (
	TypePolicyIssued    = "policy.issued"
	TypePolicyCancelled = "policy.cancelled"
	TypePaymentFailed   = "payment.failed"
)

// Message is one lifecycle notification. Key orders messages per policy.
type Message struct {
	Type       string
	Key        string
	OccurredAt time.Time
	Data       any
}

type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
}

// NoopPublisher discards messages when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, ...Message) error { return nil }
