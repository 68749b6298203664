package profile

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aimerfeng/Gigsy/internal/broker"
	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/monitoring"
	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service errors
var (
	ErrNoIdentity      = fmt.Errorf("%w: no caller identity", models.ErrUnauthorized)
	ErrProfileNotFound = fmt.Errorf("profile %w", models.ErrNotFound)
	ErrNotOwner        = fmt.Errorf("%w: caller does not own this profile", models.ErrForbidden)
	ErrNotVerifier     = fmt.Errorf("%w: role cannot verify profiles", models.ErrForbidden)
	ErrNotAdmin        = fmt.Errorf("%w: admin role required", models.ErrForbidden)
	ErrSelfVerify      = fmt.Errorf("%w: profiles cannot verify themselves", models.ErrForbidden)
	ErrAlreadyVerified = fmt.Errorf("profile already verified: %w", models.ErrInvalidState)
	ErrEmailTaken      = fmt.Errorf("email already registered: %w", models.ErrConflict)
)

const (
	maxDisplayName = 50
	maxBio         = 500
	maxSkills      = 20
	maxSkillLen    = 32
)

var phonePattern = regexp.MustCompile(`^\+?[0-9 ()-]{6,20}$`)

// Service owns profile reads and the self-service mutation set
type Service struct {
	store store.Store
	bus   broker.Bus
	now   func() time.Time
}

// NewService creates a new profile service
func NewService(st store.Store, bus broker.Bus) *Service {
	return &Service{
		store: st,
		bus:   bus,
		now:   time.Now,
	}
}

// ProfileResponse is the client projection of a profile. It never carries
// the password hash or the external identity subject.
type ProfileResponse struct {
	ID          uuid.UUID          `json:"id"`
	Email       string             `json:"email,omitempty"`
	AccountType models.AccountType `json:"account_type"`
	Role        models.Role        `json:"role"`
	DisplayName *string            `json:"display_name,omitempty"`
	AvatarURL   *string            `json:"avatar_url,omitempty"`
	Bio         *string            `json:"bio,omitempty"`
	Phone       *string            `json:"phone,omitempty"`
	Skills      []string           `json:"skills"`
	Level       int                `json:"level"`
	IsVerified  bool               `json:"is_verified"`
	VerifiedAt  *time.Time         `json:"verified_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// ToResponse builds the full projection
func ToResponse(p *models.Profile) *ProfileResponse {
	skills := p.Skills
	if skills == nil {
		skills = []string{}
	}
	return &ProfileResponse{
		ID:          p.ID,
		Email:       p.Email,
		AccountType: p.AccountType,
		Role:        p.Role,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Bio:         p.Bio,
		Phone:       p.Phone,
		Skills:      skills,
		Level:       p.Level,
		IsVerified:  p.IsVerified,
		VerifiedAt:  p.VerifiedAt,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// toPublic hides contact details from other users
func toPublic(p *models.Profile) *ProfileResponse {
	r := ToResponse(p)
	r.Email = ""
	r.Phone = nil
	return r
}

// UpdateProfileRequest carries the self-editable fields. Nil leaves a field unchanged.
type UpdateProfileRequest struct {
	DisplayName *string   `json:"display_name"`
	Bio         *string   `json:"bio"`
	Skills      *[]string `json:"skills"`
	AvatarURL   *string   `json:"avatar_url"`
	Phone       *string   `json:"phone"`
}

// CreateRequest describes a new profile. Exactly one of Subject or
// PasswordHash is normally set.
type CreateRequest struct {
	Email        string
	AccountType  models.AccountType
	Role         models.Role
	DisplayName  *string
	AvatarURL    *string
	Phone        *string
	Skills       []string
	Subject      *string
	PasswordHash *string
	// Source labels the creation path for metrics
	Source string
}

// NormalizeEmail lower-cases and trims an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Resolve maps a verified identity to its profile: local profile id first,
// then external subject, then email.
func (s *Service) Resolve(ctx context.Context, id *models.Identity) (*models.Profile, error) {
	if id.Empty() {
		return nil, ErrNoIdentity
	}

	if id.ProfileID != nil {
		return s.get(ctx, *id.ProfileID)
	}

	if id.Subject != "" {
		p, err := s.store.Profiles().GetBySubject(ctx, id.Subject)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to get profile by subject: %w", err)
		}
	}

	if id.Email != "" {
		p, err := s.store.Profiles().GetByEmail(ctx, NormalizeEmail(id.Email))
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to get profile by email: %w", err)
		}
	}

	return nil, ErrProfileNotFound
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	p, err := s.store.Profiles().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// GetCurrentUser returns the caller's own projection
func (s *Service) GetCurrentUser(ctx context.Context, id *models.Identity) (*ProfileResponse, error) {
	p, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return ToResponse(p), nil
}

// GetProfile returns a profile. Contact details are shown only to the
// profile itself and to admins.
func (s *Service) GetProfile(ctx context.Context, viewer *models.Profile, id uuid.UUID) (*ProfileResponse, error) {
	p, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if viewer != nil && (viewer.ID == p.ID || viewer.Role == models.RoleAdmin) {
		return ToResponse(p), nil
	}
	return toPublic(p), nil
}

// ProfileListResponse is a page of profiles
type ProfileListResponse struct {
	Profiles   []*ProfileResponse `json:"profiles"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
	TotalPages int                `json:"total_pages"`
}

// ListProfiles pages through profiles for admins
func (s *Service) ListProfiles(ctx context.Context, caller *models.Profile, role models.Role, page, pageSize int) (*ProfileListResponse, error) {
	if caller == nil {
		return nil, ErrNoIdentity
	}
	if caller.Role != models.RoleAdmin {
		return nil, ErrNotAdmin
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	list, total, err := s.store.Profiles().List(ctx, store.ProfileFilter{
		Role:   role,
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	out := make([]*ProfileResponse, 0, len(list))
	for _, p := range list {
		out = append(out, ToResponse(p))
	}
	return &ProfileListResponse{
		Profiles:   out,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// UpdateProfile edits the caller's own profile
func (s *Service) UpdateProfile(ctx context.Context, caller *models.Identity, targetID uuid.UUID, req *UpdateProfileRequest) (*ProfileResponse, error) {
	me, err := s.Resolve(ctx, caller)
	if err != nil {
		return nil, err
	}
	if me.ID != targetID {
		return nil, ErrNotOwner
	}
	if err := validateUpdate(req); err != nil {
		return nil, err
	}

	var updated *models.Profile
	ctx = context.WithoutCancel(ctx)
	err = s.store.WithTx(ctx, func(r store.Repos) error {
		p, err := r.Profiles().GetForUpdate(ctx, targetID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrProfileNotFound
			}
			return err
		}

		if req.DisplayName != nil {
			p.DisplayName = optional(*req.DisplayName)
		}
		if req.Bio != nil {
			p.Bio = optional(*req.Bio)
		}
		if req.Skills != nil {
			p.Skills = normalizeSkills(*req.Skills)
		}
		if req.AvatarURL != nil {
			p.AvatarURL = optional(*req.AvatarURL)
		}
		if req.Phone != nil {
			p.Phone = optional(*req.Phone)
		}
		p.UpdatedAt = s.now().UTC()

		if err := r.Profiles().Update(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	broker.Notify(ctx, s.bus, broker.SubjectProfileUpdated, ToResponse(updated))
	return ToResponse(updated), nil
}

// Create inserts a profile together with its empty wallet
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*models.Profile, *models.Wallet, error) {
	email := NormalizeEmail(req.Email)
	v := &models.ValidationError{}
	if email == "" || !strings.Contains(email, "@") {
		v.Add("email", "must be a valid email address")
	}
	accountType := req.AccountType
	if accountType == "" {
		accountType = models.AccountTypeIndividual
	}
	if !accountType.Valid() {
		v.Add("account_type", "must be individual or group")
	}
	role := req.Role
	if role == "" {
		role = models.RoleIndividual
	}
	if !role.Valid() {
		v.Add("role", "unknown role")
	}
	if err := v.Err(); err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	p := &models.Profile{
		ID:           uuid.New(),
		Email:        email,
		AccountType:  accountType,
		Role:         role,
		DisplayName:  req.DisplayName,
		AvatarURL:    req.AvatarURL,
		Phone:        req.Phone,
		Skills:       normalizeSkills(req.Skills),
		Level:        1,
		Subject:      req.Subject,
		PasswordHash: req.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	w := &models.Wallet{
		ID:        uuid.New(),
		UserID:    p.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	ctx = context.WithoutCancel(ctx)
	err := s.store.WithTx(ctx, func(r store.Repos) error {
		return createWith(ctx, r, p, w)
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, fmt.Errorf("failed to create profile: %w", err)
	}

	source := req.Source
	if source == "" {
		source = "api"
	}
	monitoring.RecordProfileCreated(source)
	log.Info().Str("profile_id", p.ID.String()).Str("source", source).Msg("Profile created")
	broker.Notify(ctx, s.bus, broker.SubjectProfileCreated, ToResponse(p))

	return p, w, nil
}

func createWith(ctx context.Context, r store.Repos, p *models.Profile, w *models.Wallet) error {
	if err := r.Profiles().Create(ctx, p); err != nil {
		return err
	}
	return r.Wallets().Create(ctx, w)
}

// Verify marks target as verified by a campus ambassador or staff member
func (s *Service) Verify(ctx context.Context, verifier *models.Profile, targetID uuid.UUID) (*ProfileResponse, error) {
	if verifier == nil {
		return nil, ErrNoIdentity
	}
	if !verifier.Role.CanVerify() {
		return nil, ErrNotVerifier
	}
	if verifier.ID == targetID {
		return nil, ErrSelfVerify
	}

	var updated *models.Profile
	ctx = context.WithoutCancel(ctx)
	err := s.store.WithTx(ctx, func(r store.Repos) error {
		p, err := r.Profiles().GetForUpdate(ctx, targetID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrProfileNotFound
			}
			return err
		}
		if p.IsVerified {
			return ErrAlreadyVerified
		}

		now := s.now().UTC()
		verifierID := verifier.ID
		p.IsVerified = true
		p.VerifiedBy = &verifierID
		p.VerifiedAt = &now
		p.UpdatedAt = now
		if err := r.Profiles().Update(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify profile: %w", err)
	}

	broker.Notify(ctx, s.bus, broker.SubjectProfileVerified, ToResponse(updated))
	return ToResponse(updated), nil
}

// SetRole changes a profile's role. Admin only.
func (s *Service) SetRole(ctx context.Context, admin *models.Profile, targetID uuid.UUID, role models.Role) (*ProfileResponse, error) {
	if admin == nil {
		return nil, ErrNoIdentity
	}
	if admin.Role != models.RoleAdmin {
		return nil, ErrNotAdmin
	}
	if !role.Valid() {
		return nil, models.NewValidationError("role", "unknown role")
	}

	var updated *models.Profile
	ctx = context.WithoutCancel(ctx)
	err := s.store.WithTx(ctx, func(r store.Repos) error {
		p, err := r.Profiles().GetForUpdate(ctx, targetID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrProfileNotFound
			}
			return err
		}
		p.Role = role
		p.UpdatedAt = s.now().UTC()
		if err := r.Profiles().Update(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set role: %w", err)
	}

	log.Info().
		Str("admin_id", admin.ID.String()).
		Str("profile_id", targetID.String()).
		Str("role", string(role)).
		Msg("Profile role changed")
	broker.Notify(ctx, s.bus, broker.SubjectProfileUpdated, ToResponse(updated))
	return ToResponse(updated), nil
}

// ExternalUser is the identity provider's view of a user
type ExternalUser struct {
	Subject     string
	Email       string
	DisplayName *string
	ImageURL    *string
	Phone       *string
}

// UpsertFromIdentity links or creates the profile for an external user.
// It matches by subject, then by email; new profiles start as individuals.
func (s *Service) UpsertFromIdentity(ctx context.Context, ext *ExternalUser) (*models.Profile, bool, error) {
	if ext.Subject == "" {
		return nil, false, models.NewValidationError("id", "subject is required")
	}
	email := NormalizeEmail(ext.Email)
	if email == "" {
		return nil, false, models.NewValidationError("email_addresses", "a primary email is required")
	}

	var result *models.Profile
	created := false
	ctx = context.WithoutCancel(ctx)
	err := s.store.WithTx(ctx, func(r store.Repos) error {
		p, err := r.Profiles().GetBySubject(ctx, ext.Subject)
		if errors.Is(err, store.ErrNotFound) {
			p, err = r.Profiles().GetByEmail(ctx, email)
		}

		now := s.now().UTC()
		switch {
		case err == nil:
			subject := ext.Subject
			p.Subject = &subject
			if ext.DisplayName != nil {
				p.DisplayName = ext.DisplayName
			}
			if ext.ImageURL != nil {
				p.AvatarURL = ext.ImageURL
			}
			if ext.Phone != nil {
				p.Phone = ext.Phone
			}
			p.UpdatedAt = now
			if err := r.Profiles().Update(ctx, p); err != nil {
				return err
			}
			result = p
			return nil

		case errors.Is(err, store.ErrNotFound):
			subject := ext.Subject
			p = &models.Profile{
				ID:          uuid.New(),
				Email:       email,
				AccountType: models.AccountTypeIndividual,
				Role:        models.RoleIndividual,
				DisplayName: ext.DisplayName,
				AvatarURL:   ext.ImageURL,
				Phone:       ext.Phone,
				Skills:      []string{},
				Level:       1,
				Subject:     &subject,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			w := &models.Wallet{ID: uuid.New(), UserID: p.ID, CreatedAt: now, UpdatedAt: now}
			if err := createWith(ctx, r, p, w); err != nil {
				return err
			}
			result = p
			created = true
			return nil

		default:
			return err
		}
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, false, ErrEmailTaken
		}
		return nil, false, fmt.Errorf("failed to upsert profile: %w", err)
	}

	if created {
		monitoring.RecordProfileCreated("webhook")
		broker.Notify(ctx, s.bus, broker.SubjectProfileCreated, ToResponse(result))
	} else {
		broker.Notify(ctx, s.bus, broker.SubjectProfileUpdated, ToResponse(result))
	}
	return result, created, nil
}

func validateUpdate(req *UpdateProfileRequest) error {
	v := &models.ValidationError{}
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" {
			v.Add("display_name", "must not be empty")
		} else if utf8.RuneCountInString(name) > maxDisplayName {
			v.Add("display_name", fmt.Sprintf("must be at most %d characters", maxDisplayName))
		}
	}
	if req.Bio != nil && utf8.RuneCountInString(*req.Bio) > maxBio {
		v.Add("bio", fmt.Sprintf("must be at most %d characters", maxBio))
	}
	if req.Skills != nil {
		skills := normalizeSkills(*req.Skills)
		if len(skills) > maxSkills {
			v.Add("skills", fmt.Sprintf("at most %d skills", maxSkills))
		}
		for _, sk := range skills {
			if utf8.RuneCountInString(sk) > maxSkillLen {
				v.Add("skills", fmt.Sprintf("skill %q is longer than %d characters", sk, maxSkillLen))
				break
			}
		}
	}
	if req.AvatarURL != nil && *req.AvatarURL != "" {
		u, err := url.Parse(*req.AvatarURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			v.Add("avatar_url", "must be an http(s) URL")
		}
	}
	if req.Phone != nil && *req.Phone != "" && !phonePattern.MatchString(*req.Phone) {
		v.Add("phone", "must be a phone number")
	}
	return v.Err()
}

// normalizeSkills trims, drops empties and de-duplicates case-insensitively
func normalizeSkills(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// optional maps an empty string to nil so clients can clear a field
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
