package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// LocalBus delivers events in-process, synchronously, in subscription order.
// It backs single-instance deployments and tests.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[int]*localSub
	nextID int
	closed bool
}

type localSub struct {
	id      int
	pattern string
	handler Handler
	bus     *LocalBus
}

// NewLocalBus creates an in-process bus
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[int]*localSub)}
}

func (b *LocalBus) Publish(ctx context.Context, subject string, payload any) error {
	if !validPattern(subject) {
		return fmt.Errorf("%w: %q", ErrInvalidSubject, subject)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	var targets []*localSub
	for _, s := range b.subs {
		if Match(s.pattern, subject) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	// deliver in subscription order
	for i := 1; i < len(targets); i++ {
		for j := i; j > 0 && targets[j].id < targets[j-1].id; j-- {
			targets[j], targets[j-1] = targets[j-1], targets[j]
		}
	}
	for _, s := range targets {
		s.handler(ctx, subject, data)
	}
	return nil
}

func (b *LocalBus) Subscribe(pattern string, h Handler) (Subscription, error) {
	if !validPattern(pattern) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSubject, pattern)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	b.nextID++
	s := &localSub{id: b.nextID, pattern: pattern, handler: h, bus: b}
	b.subs[s.id] = s
	return s, nil
}

func (b *LocalBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[int]*localSub)
}

func (s *localSub) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs, s.id)
	return nil
}
