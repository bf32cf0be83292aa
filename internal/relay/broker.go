package relay

import (
	"context"
	"encoding/json"
	"sync"
)

// Target kinds of an Envelope
const (
	TargetUser = "user"
	TargetRoom = "room"
)

// Envelope is an outbound event on its way to every relay node. Each node
// delivers it to the matching sessions it holds.
type Envelope struct {
	Target  string          `json:"target"`
	Key     string          `json:"key"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Origin  string          `json:"origin,omitempty"`
}

// Broker fans envelopes out to all relay nodes, the publishing node included
type Broker interface {
	// Start begins delivering received envelopes to deliver. It does not block.
	Start(ctx context.Context, deliver func(Envelope)) error
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// LocalBroker delivers envelopes synchronously within one process
type LocalBroker struct {
	mu      sync.RWMutex
	deliver func(Envelope)
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{}
}

func (b *LocalBroker) Start(_ context.Context, deliver func(Envelope)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliver = deliver
	return nil
}

func (b *LocalBroker) Publish(_ context.Context, env Envelope) error {
	b.mu.RLock()
	deliver := b.deliver
	b.mu.RUnlock()

	if deliver != nil {
		deliver(env)
	}
	return nil
}

func (b *LocalBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliver = nil
	return nil
}
