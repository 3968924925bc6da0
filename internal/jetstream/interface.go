package jetstream

import (
	"context"

	"github.com/nats-io/nats.go"
)

// ClientInterface is the NATS surface used by ingestion, the DLQ worker,
// the webhook publisher and the chat gateway transport.
type ClientInterface interface {
	// SetupStream creates or updates a stream to match streamConfig.
	SetupStream(ctx context.Context, streamConfig *nats.StreamConfig) error

	// SetupConsumer creates the durable consumer, recreating it on config drift.
	SetupConsumer(ctx context.Context, streamName string, consumerConfig *nats.ConsumerConfig) error

	// SubscribePush binds a queue push subscription to an existing durable.
	SubscribePush(subject, consumer, group, stream string, handler nats.MsgHandler) (*nats.Subscription, error)

	// SubscribePull binds a pull subscription to an existing durable.
	SubscribePull(streamName, subject, consumer string) (*nats.Subscription, error)

	// Publish persists data on a JetStream subject with optional headers.
	Publish(subject string, data []byte, headers map[string]string) error

	// Request performs a core NATS request/reply bounded by ctx.
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)

	// SubscribeCore subscribes to a plain (non-JetStream) subject.
	SubscribeCore(subject string, handler nats.MsgHandler) (*nats.Subscription, error)

	Close()

	NatsConn() *nats.Conn
}
