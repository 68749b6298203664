// Package broker carries domain events between services and API instances.
// Subjects follow gigsy.<family>.<event>.
package broker

import (
	"context"
	"errors"
	"strings"

	"github.com/aimerfeng/Gigsy/internal/monitoring"
	"github.com/rs/zerolog/log"
)

// Domain event subjects
const (
	SubjectProfileCreated      = "gigsy.profile.created"
	SubjectProfileUpdated      = "gigsy.profile.updated"
	SubjectProfileVerified     = "gigsy.profile.verified"
	SubjectProjectCreated      = "gigsy.project.created"
	SubjectProjectUpdated      = "gigsy.project.updated"
	SubjectBidSubmitted        = "gigsy.bid.submitted"
	SubjectBidAccepted         = "gigsy.bid.accepted"
	SubjectBidRejected         = "gigsy.bid.rejected"
	SubjectTransactionApplied  = "gigsy.wallet.transaction"
	SubjectEventCreated        = "gigsy.event.created"
	SubjectEventUpdated        = "gigsy.event.updated"
	SubjectRegistrationCreated = "gigsy.registration.created"
	SubjectRewardClaimed       = "gigsy.registration.rewarded"
	SubjectMessageCreated      = "gigsy.message.created"
)

// Errors
var (
	ErrBrokerUnavailable = errors.New("event broker unavailable")
	ErrBusClosed         = errors.New("event bus closed")
	ErrInvalidSubject    = errors.New("invalid subject")
)

// Handler receives the raw JSON payload of a published event
type Handler func(ctx context.Context, subject string, data []byte)

// Subscription is an active interest in a subject pattern
type Subscription interface {
	Unsubscribe() error
}

// Bus publishes and subscribes to domain events. Patterns accept NATS-style
// wildcards: "*" matches one token, ">" matches the remaining tokens.
type Bus interface {
	Publish(ctx context.Context, subject string, payload any) error
	Subscribe(pattern string, h Handler) (Subscription, error)
	Close()
}

// Notify publishes after a commit. Failures are logged and otherwise ignored;
// a nil bus is allowed.
func Notify(ctx context.Context, bus Bus, subject string, payload any) {
	if bus == nil {
		return
	}
	if err := bus.Publish(context.WithoutCancel(ctx), subject, payload); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("Failed to publish domain event")
		monitoring.RecordDomainEventFailure(subject)
	}
}

// Match reports whether subject matches pattern
func Match(pattern, subject string) bool {
	p := strings.Split(pattern, ".")
	s := strings.Split(subject, ".")
	for i, tok := range p {
		if tok == ">" {
			return i < len(s)
		}
		if i >= len(s) {
			return false
		}
		if tok != "*" && tok != s[i] {
			return false
		}
	}
	return len(p) == len(s)
}

func validPattern(pattern string) bool {
	if pattern == "" {
		return false
	}
	toks := strings.Split(pattern, ".")
	for i, tok := range toks {
		if tok == "" {
			return false
		}
		if tok == ">" && i != len(toks)-1 {
			return false
		}
	}
	return true
}
