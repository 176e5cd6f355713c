package natsadapter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/forestlens/internal/core/domain"
	"github.com/samirrijal/forestlens/internal/core/ports"
)

const (
	// RecorderDurable is the durable consumer name of the analysis recorder.
	RecorderDurable = "analysis-recorder"

	recorderMaxDeliver = 5
	redeliveryBase     = 2 * time.Second
)

var _ ports.EventSubscriber = (*Subscriber)(nil)

type ackAction int

const (
	ackDone ackAction = iota
	ackRetry
	ackDrop
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	if err := ensureStream(js); err != nil {
		conn.Close()
		return nil, err
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeAnalysisCompleted delivers every analysis event to handler through
// the recorder's durable consumer. A handler error schedules a redelivery with
// a growing delay; an undecodable event is terminated.
func (s *Subscriber) SubscribeAnalysisCompleted(ctx context.Context, handler func(ctx context.Context, event *domain.AnalysisCompleted) error) error {
	sub, err := s.js.Subscribe(SubjectAll, func(msg *nats.Msg) {
		delivered := uint64(1)
		if md, err := msg.Metadata(); err == nil {
			delivered = md.NumDelivered
		}

		switch decideAck(ctx, msg.Data, handler) {
		case ackDone:
			_ = msg.Ack()
		case ackRetry:
			_ = msg.NakWithDelay(redeliveryDelay(delivered))
		case ackDrop:
			slog.Warn("dropping malformed analysis event", "subject", msg.Subject)
			_ = msg.Term()
		}
	},
		nats.Durable(RecorderDurable),
		nats.ManualAck(),
		nats.MaxDeliver(recorderMaxDeliver),
		nats.DeliverAll(),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectAll, err)
	}
	s.subs = append(s.subs, sub)
	return nil
}

func decideAck(ctx context.Context, data []byte, handler func(context.Context, *domain.AnalysisCompleted) error) ackAction {
	var event domain.AnalysisCompleted
	if err := json.Unmarshal(data, &event); err != nil || event.Endpoint == "" {
		return ackDrop
	}
	if err := handler(ctx, &event); err != nil {
		return ackRetry
	}
	return ackDone
}

// redeliveryDelay doubles per delivery: 2s, 4s, 8s, ...
func redeliveryDelay(delivered uint64) time.Duration {
	if delivered < 1 {
		delivered = 1
	}
	if delivered > 6 {
		delivered = 6
	}
	return redeliveryBase << (delivered - 1)
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
