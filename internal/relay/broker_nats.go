package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSBroker fans envelopes out over a core NATS subject
type NATSBroker struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger

	sub *nats.Subscription
}

// DialNATS connects with reconnects enabled
func DialNATS(url, name string) (*nats.Conn, error) {
	if url == "" {
		return nil, errors.New("nats url missing")
	}
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3*time.Second),
	)
}

func NewNATSBroker(nc *nats.Conn, subject string, logger *zap.Logger) *NATSBroker {
	if subject == "" {
		subject = "roomly.relay"
	}
	return &NATSBroker{nc: nc, subject: subject, logger: logger}
}

func (b *NATSBroker) Start(_ context.Context, deliver func(Envelope)) error {
	sub, err := b.nc.Subscribe(b.subject, func(m *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(m.Data, &env); err != nil {
			b.logger.Warn("dropping malformed envelope", zap.Error(err))
			return
		}
		deliver(env)
	})
	if err != nil {
		return err
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
	b.sub = sub
	return b.nc.Flush()
}

func (b *NATSBroker) Publish(_ context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.nc.Publish(b.subject, data)
}

// Close drains the subscription and the connection
func (b *NATSBroker) Close() error {
	if b.sub != nil {
		_ = b.sub.Drain()
	}
	return b.nc.Drain()
}
