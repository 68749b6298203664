package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"gigsy.message.created", "gigsy.message.created", true},
		{"gigsy.*.created", "gigsy.project.created", true},
		{"gigsy.*.created", "gigsy.project.updated", false},
		{"gigsy.>", "gigsy.bid.accepted", true},
		{"gigsy.>", "gigsy", false},
		{"gigsy.message", "gigsy.message.created", false},
		{"gigsy.message.created.x", "gigsy.message.created", false},
	}
	for _, tt := range tests {
		if got := Match(tt.pattern, tt.subject); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.subject, got, tt.want)
		}
	}
}

// TestProperty_Match_FullWildcard tests that ">" after a prefix matches every deeper subject
// *For any* subject with at least one token after the prefix, "prefix.>" SHALL match it.
func TestProperty_Match_FullWildcard(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tokens := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,8}`), 1, 4).Draw(rt, "tokens")
		subject := "gigsy"
		for _, tok := range tokens {
			subject += "." + tok
		}
		if !Match("gigsy.>", subject) {
			rt.Fatalf("PROPERTY VIOLATION: gigsy.> should match %s", subject)
		}
		if Match("other.>", subject) {
			rt.Fatalf("PROPERTY VIOLATION: other.> should not match %s", subject)
		}
	})
}

func TestLocalBus_Delivery(t *testing.T) {
	bus := NewLocalBus()
	defer bus.Close()

	var got []string
	sub, err := bus.Subscribe("gigsy.message.*", func(ctx context.Context, subject string, data []byte) {
		var payload map[string]string
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		got = append(got, subject+":"+payload["content"])
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := bus.Publish(ctx, SubjectMessageCreated, map[string]string{"content": "gg"}); err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(ctx, SubjectBidAccepted, map[string]string{"content": "ignored"}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "gigsy.message.created:gg" {
		t.Fatalf("unexpected deliveries: %v", got)
	}

	_ = sub.Unsubscribe()
	_ = bus.Publish(ctx, SubjectMessageCreated, map[string]string{"content": "late"})
	if len(got) != 1 {
		t.Fatal("unsubscribed handler must not be called")
	}
}

func TestLocalBus_InvalidAndClosed(t *testing.T) {
	bus := NewLocalBus()
	if _, err := bus.Subscribe("gigsy.>.x", nil); !errors.Is(err, ErrInvalidSubject) {
		t.Fatalf("expected ErrInvalidSubject, got %v", err)
	}
	bus.Close()
	if err := bus.Publish(context.Background(), SubjectMessageCreated, nil); !errors.Is(err, ErrBusClosed) {
		t.Fatalf("expected ErrBusClosed, got %v", err)
	}
}

func TestNotify_NilBus(t *testing.T) {
	Notify(context.Background(), nil, SubjectProjectCreated, struct{}{})
}

// TestGuardedPublisher_OpensAfterFailures tests the publish circuit breaker
func TestGuardedPublisher_OpensAfterFailures(t *testing.T) {
	var transitions []string
	calls := 0
	g := &guardedPublisher{
		cb: newBreaker("test", &BreakerConfig{
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          time.Minute,
			FailureThreshold: 3,
			OnStateChange: func(name, from, to string) {
				transitions = append(transitions, to)
			},
		}),
		publish: func(subject string, data []byte) error {
			calls++
			return errors.New("connection refused")
		},
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := g.Publish(ctx, SubjectProjectCreated, struct{}{}); err == nil || errors.Is(err, ErrBrokerUnavailable) {
			t.Fatalf("attempt %d: expected the raw publish error, got %v", i+1, err)
		}
	}

	if err := g.Publish(ctx, SubjectProjectCreated, struct{}{}); !errors.Is(err, ErrBrokerUnavailable) {
		t.Fatalf("expected ErrBrokerUnavailable once open, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("open breaker must not call publish, got %d calls", calls)
	}
	if g.State() != "open" || len(transitions) != 1 || transitions[0] != "open" {
		t.Fatalf("unexpected breaker state %s, transitions %v", g.State(), transitions)
	}
}
