package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// BreakerConfig holds configuration for the publish circuit breaker
type BreakerConfig struct {
	// MaxRequests allowed through while half-open
	MaxRequests uint32
	// Interval clears the closed-state counts
	Interval time.Duration
	// Timeout is how long the breaker stays open
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens it
	FailureThreshold uint32
	// OnStateChange observes transitions, e.g. for metrics
	OnStateChange func(name, from, to string)
}

// DefaultBreakerConfig returns default circuit breaker configuration
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

func newBreaker(name string, cfg *BreakerConfig) *gobreaker.CircuitBreaker {
	if cfg == nil {
		cfg = DefaultBreakerConfig()
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info().
				Str("circuit_breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, from.String(), to.String())
			}
		},
	})
}

// publishFunc is the raw publish the breaker protects
type publishFunc func(subject string, data []byte) error

// guardedPublisher wraps a raw publish with the circuit breaker
type guardedPublisher struct {
	cb      *gobreaker.CircuitBreaker
	publish publishFunc
}

func (g *guardedPublisher) Publish(ctx context.Context, subject string, payload any) error {
	if !validPattern(subject) {
		return fmt.Errorf("%w: %q", ErrInvalidSubject, subject)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	_, err = g.cb.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return nil, g.publish(subject, data)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return ErrBrokerUnavailable
		}
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

// State returns the breaker state name
func (g *guardedPublisher) State() string {
	return g.cb.State().String()
}

// NATSBus publishes domain events to a NATS server so every API instance
// sees them.
type NATSBus struct {
	conn *nats.Conn
	*guardedPublisher
}

// NewNATSBus connects to url. Reconnects are handled by the client.
func NewNATSBus(url, name string, cfg *BreakerConfig) (*NATSBus, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	log.Info().Str("url", conn.ConnectedUrl()).Msg("NATS connection established")

	return &NATSBus{
		conn: conn,
		guardedPublisher: &guardedPublisher{
			cb:      newBreaker("nats-publish", cfg),
			publish: conn.Publish,
		},
	}, nil
}

func (b *NATSBus) Subscribe(pattern string, h Handler) (Subscription, error) {
	if !validPattern(pattern) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSubject, pattern)
	}
	sub, err := b.conn.Subscribe(pattern, func(m *nats.Msg) {
		h(context.Background(), m.Subject, m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
	}
	return sub, nil
}

// Close drains pending messages before closing the connection
func (b *NATSBus) Close() {
	if err := b.conn.Drain(); err != nil {
		log.Warn().Err(err).Msg("Failed to drain NATS connection")
		b.conn.Close()
	}
}

var (
	_ Bus = (*LocalBus)(nil)
	_ Bus = (*NATSBus)(nil)
)
