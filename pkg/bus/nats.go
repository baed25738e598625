// Package bus adapts NATS subscriptions to the monitor's message
// source interface.
package bus

import (
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"eventmon/pkg/monitor"
)

const defaultSubject = "events.>"

// NATSSource subscribes to a subject tree and forwards messages to the
// ingestion pipeline.
type NATSSource struct {
	sub  *nats.Subscription
	raw  chan *nats.Msg
	out  chan monitor.Message
	done chan struct{}
}

// NewNATSSource subscribes on the connection. An empty subject means
// "events.>".
func NewNATSSource(nc *nats.Conn, subject string, logger *zap.Logger) (*NATSSource, error) {
	if subject == "" {
		subject = defaultSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	raw := make(chan *nats.Msg, 256)
	sub, err := nc.ChanSubscribe(subject, raw)
	if err != nil {
		return nil, err
	}
	logger.Info("subscribed to event bus", zap.String("subject", subject))

	s := &NATSSource{
		sub:  sub,
		raw:  raw,
		out:  make(chan monitor.Message),
		done: make(chan struct{}),
	}
	go s.forward()
	return s, nil
}

func (s *NATSSource) forward() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-s.raw:
			if !ok {
				return
			}
			select {
			case s.out <- monitor.Message{Subject: msg.Subject, Payload: msg.Data}:
			case <-s.done:
				return
			}
		}
	}
}

// Messages implements monitor.Source.
func (s *NATSSource) Messages() <-chan monitor.Message {
	return s.out
}

// Close unsubscribes and stops the forwarder, closing the message
// channel.
func (s *NATSSource) Close() error {
	err := s.sub.Unsubscribe()
	close(s.done)
	return err
}
