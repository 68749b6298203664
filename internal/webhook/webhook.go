// Package webhook applies identity-provider lifecycle events to profiles.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aimerfeng/Gigsy/internal/logging"
	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/profile"
	"github.com/rs/zerolog/log"
)

// Event types
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
)

// Event is a delivery envelope
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// UserData is the user object carried by user.* events
type UserData struct {
	ID                    string         `json:"id"`
	Username              *string        `json:"username"`
	FirstName             *string        `json:"first_name"`
	LastName              *string        `json:"last_name"`
	ImageURL              *string        `json:"image_url"`
	ProfileImageURL       *string        `json:"profile_image_url"`
	PrimaryEmailAddressID *string        `json:"primary_email_address_id"`
	EmailAddresses        []EmailAddress `json:"email_addresses"`
	PrimaryPhoneNumberID  *string        `json:"primary_phone_number_id"`
	PhoneNumbers          []PhoneNumber  `json:"phone_numbers"`
}

type EmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

type PhoneNumber struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phone_number"`
}

// Result reports what a delivery did
type Result struct {
	Type      string `json:"type"`
	Handled   bool   `json:"handled"`
	Created   bool   `json:"created,omitempty"`
	ProfileID string `json:"profile_id,omitempty"`
}

// Service verifies deliveries and upserts profiles
type Service struct {
	verifier *Verifier
	profiles *profile.Service
}

// NewService creates a webhook service. secret is the "whsec_" signing secret.
func NewService(secret string, profiles *profile.Service) (*Service, error) {
	v, err := NewVerifier(secret)
	if err != nil {
		return nil, err
	}
	return &Service{verifier: v, profiles: profiles}, nil
}

// Handle verifies and applies one delivery. Unknown event types are
// acknowledged without effect.
func (s *Service) Handle(ctx context.Context, h http.Header, body []byte, clientIP string) (*Result, error) {
	if err := s.verifier.Verify(h, body); err != nil {
		logging.LogSecurityEvent("webhook_signature_rejected", "", clientIP, err.Error())
		return nil, err
	}

	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, models.NewValidationError("body", "malformed event")
	}

	switch evt.Type {
	case EventUserCreated, EventUserUpdated:
	default:
		log.Info().Str("type", evt.Type).Str("delivery_id", h.Get(HeaderID)).Msg("Ignoring identity webhook event")
		return &Result{Type: evt.Type}, nil
	}

	var user UserData
	if err := json.Unmarshal(evt.Data, &user); err != nil {
		return nil, models.NewValidationError("data", "malformed user object")
	}

	p, created, err := s.profiles.UpsertFromIdentity(ctx, user.External())
	if err != nil {
		return nil, fmt.Errorf("failed to apply %s: %w", evt.Type, err)
	}

	log.Info().
		Str("type", evt.Type).
		Str("profile_id", p.ID.String()).
		Bool("created", created).
		Msg("Identity webhook applied")
	return &Result{Type: evt.Type, Handled: true, Created: created, ProfileID: p.ID.String()}, nil
}

// External maps the provider's user object onto a profile upsert
func (u *UserData) External() *profile.ExternalUser {
	ext := &profile.ExternalUser{
		Subject:  u.ID,
		Email:    u.primaryEmail(),
		ImageURL: firstNonEmpty(u.ImageURL, u.ProfileImageURL),
		Phone:    u.primaryPhone(),
	}

	var parts []string
	for _, p := range []*string{u.FirstName, u.LastName} {
		if p != nil && strings.TrimSpace(*p) != "" {
			parts = append(parts, strings.TrimSpace(*p))
		}
	}
	if name := strings.Join(parts, " "); name != "" {
		ext.DisplayName = &name
	} else if u.Username != nil && strings.TrimSpace(*u.Username) != "" {
		name := strings.TrimSpace(*u.Username)
		ext.DisplayName = &name
	}
	return ext
}

func (u *UserData) primaryEmail() string {
	for _, e := range u.EmailAddresses {
		if u.PrimaryEmailAddressID != nil && e.ID == *u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

func (u *UserData) primaryPhone() *string {
	for _, p := range u.PhoneNumbers {
		if u.PrimaryPhoneNumberID != nil && p.ID == *u.PrimaryPhoneNumberID {
			n := p.PhoneNumber
			return &n
		}
	}
	if len(u.PhoneNumbers) > 0 {
		n := u.PhoneNumbers[0].PhoneNumber
		return &n
	}
	return nil
}

func firstNonEmpty(vals ...*string) *string {
	for _, v := range vals {
		if v != nil && *v != "" {
			return v
		}
	}
	return nil
}
