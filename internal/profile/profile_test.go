package profile

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aimerfeng/Gigsy/internal/broker"
	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/store/memory"
	"github.com/google/uuid"
	"pgregory.net/rapid"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(memory.New(), nil)
}

func mustCreate(t *testing.T, s *Service, email string, role models.Role) *models.Profile {
	t.Helper()
	p, _, err := s.Create(context.Background(), &CreateRequest{Email: email, Role: role})
	if err != nil {
		t.Fatalf("Create(%s) failed: %v", email, err)
	}
	return p
}

func identityOf(p *models.Profile) *models.Identity {
	id := p.ID
	return &models.Identity{ProfileID: &id}
}

func strPtr(s string) *string { return &s }

func TestResolveOrder(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	subject := "user_2abc"
	byToken := mustCreate(t, s, "token@example.com", models.RoleIndividual)
	bySubject, _, err := s.Create(ctx, &CreateRequest{Email: "subject@example.com", Subject: &subject})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	tests := []struct {
		name string
		id   *models.Identity
		want uuid.UUID
	}{
		{"profile id wins", &models.Identity{ProfileID: &byToken.ID, Subject: subject}, byToken.ID},
		{"subject before email", &models.Identity{Subject: subject, Email: "token@example.com"}, bySubject.ID},
		{"unknown subject falls back to email", &models.Identity{Subject: "user_other", Email: "TOKEN@example.com"}, byToken.ID},
		{"email only", &models.Identity{Email: "subject@example.com"}, bySubject.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := s.Resolve(ctx, tt.id)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if p.ID != tt.want {
				t.Errorf("resolved %s, want %s", p.ID, tt.want)
			}
		})
	}
}

func TestGetCurrentUser(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.GetCurrentUser(ctx, nil); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("nil identity: expected Unauthorized, got %v", err)
	}
	if _, err := s.GetCurrentUser(ctx, &models.Identity{}); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("empty identity: expected Unauthorized, got %v", err)
	}
	if _, err := s.GetCurrentUser(ctx, &models.Identity{Email: "ghost@example.com"}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown identity: expected NotFound, got %v", err)
	}

	p := mustCreate(t, s, "me@example.com", models.RoleIndividual)
	resp, err := s.GetCurrentUser(ctx, identityOf(p))
	if err != nil {
		t.Fatalf("GetCurrentUser failed: %v", err)
	}
	if resp.ID != p.ID || resp.Email != "me@example.com" {
		t.Errorf("unexpected projection: %+v", resp)
	}
}

func TestGetProfileHidesContactDetails(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	owner, _, err := s.Create(ctx, &CreateRequest{Email: "owner@example.com", Phone: strPtr("+1 555 0100")})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	stranger := mustCreate(t, s, "stranger@example.com", models.RoleIndividual)
	admin := mustCreate(t, s, "admin@example.com", models.RoleAdmin)

	pub, err := s.GetProfile(ctx, stranger, owner.ID)
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if pub.Email != "" || pub.Phone != nil {
		t.Errorf("contact details leaked to another user: %+v", pub)
	}

	for _, viewer := range []*models.Profile{owner, admin} {
		full, err := s.GetProfile(ctx, viewer, owner.ID)
		if err != nil {
			t.Fatalf("GetProfile failed: %v", err)
		}
		if full.Email == "" || full.Phone == nil {
			t.Errorf("viewer %s should see contact details", viewer.Email)
		}
	}

	if _, err := s.GetProfile(ctx, nil, uuid.New()); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	p := mustCreate(t, s, "edit@example.com", models.RoleIndividual)

	later := p.UpdatedAt.Add(time.Minute)
	s.now = func() time.Time { return later }

	skills := []string{"Go", " go ", "Rust", ""}
	resp, err := s.UpdateProfile(ctx, identityOf(p), p.ID, &UpdateProfileRequest{
		DisplayName: strPtr("  Pixel Knight "),
		Skills:      &skills,
	})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if resp.DisplayName == nil || *resp.DisplayName != "Pixel Knight" {
		t.Errorf("display name = %v", resp.DisplayName)
	}
	if len(resp.Skills) != 2 || resp.Skills[0] != "Go" || resp.Skills[1] != "Rust" {
		t.Errorf("skills not normalized: %v", resp.Skills)
	}
	if !resp.UpdatedAt.Equal(later.UTC()) {
		t.Errorf("updated_at not bumped: %v", resp.UpdatedAt)
	}
	if resp.Role != p.Role || resp.Email != p.Email {
		t.Error("update touched fields outside the editable set")
	}
}

func TestUpdateProfileRequiresOwner(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	p := mustCreate(t, s, "target@example.com", models.RoleIndividual)
	other := mustCreate(t, s, "other@example.com", models.RoleAdmin)

	_, err := s.UpdateProfile(ctx, identityOf(other), p.ID, &UpdateProfileRequest{Bio: strPtr("hi")})
	if !errors.Is(err, models.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}

	_, err = s.UpdateProfile(ctx, nil, p.ID, &UpdateProfileRequest{Bio: strPtr("hi")})
	if !errors.Is(err, models.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized for missing identity, got %v", err)
	}
}

func TestUpdateProfileValidation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	p := mustCreate(t, s, "valid@example.com", models.RoleIndividual)

	tooMany := make([]string, maxSkills+1)
	for i := range tooMany {
		tooMany[i] = "skill" + string(rune('a'+i))
	}

	cases := map[string]*UpdateProfileRequest{
		"blank name":  {DisplayName: strPtr("   ")},
		"long name":   {DisplayName: strPtr(strings.Repeat("x", maxDisplayName+1))},
		"long bio":    {Bio: strPtr(strings.Repeat("b", maxBio+1))},
		"many skills": {Skills: &tooMany},
		"bad avatar":  {AvatarURL: strPtr("javascript:alert(1)")},
		"bad phone":   {Phone: strPtr("call me maybe")},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.UpdateProfile(ctx, identityOf(p), p.ID, req)
			var verr *models.ValidationError
			if !errors.As(err, &verr) || len(verr.Fields) == 0 {
				t.Fatalf("expected ValidationError with fields, got %v", err)
			}
		})
	}
}

func TestCreateDuplicateEmail(t *testing.T) {
	s := newTestService(t)
	mustCreate(t, s, "same@example.com", models.RoleIndividual)

	_, _, err := s.Create(context.Background(), &CreateRequest{Email: "Same@Example.com"})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestVerify(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	ambassador := mustCreate(t, s, "amb@example.com", models.RoleAmbassador)
	member := mustCreate(t, s, "member@example.com", models.RoleIndividual)
	peer := mustCreate(t, s, "peer@example.com", models.RoleIndividual)

	if _, err := s.Verify(ctx, peer, member.ID); !errors.Is(err, ErrNotVerifier) {
		t.Errorf("individual verifier: expected ErrNotVerifier, got %v", err)
	}
	if _, err := s.Verify(ctx, ambassador, ambassador.ID); !errors.Is(err, ErrSelfVerify) {
		t.Errorf("self verify: expected ErrSelfVerify, got %v", err)
	}

	resp, err := s.Verify(ctx, ambassador, member.ID)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !resp.IsVerified || resp.VerifiedAt == nil {
		t.Errorf("profile not marked verified: %+v", resp)
	}
	stored, _ := s.store.Profiles().Get(ctx, member.ID)
	if stored.VerifiedBy == nil || *stored.VerifiedBy != ambassador.ID {
		t.Errorf("verifier not recorded: %v", stored.VerifiedBy)
	}

	if _, err := s.Verify(ctx, ambassador, member.ID); !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("second verify: expected InvalidState, got %v", err)
	}
}

// TestProperty_VerifierRoles tests the verifier role gate.
// *For any* role, Verify SHALL succeed exactly when the role can verify.
func TestProperty_VerifierRoles(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	rapid.Check(t, func(t *rapid.T) {
		role := rapid.SampledFrom(models.AllRoles).Draw(t, "role")
		verifier, _, err := s.Create(ctx, &CreateRequest{Email: uuid.NewString() + "@example.com", Role: role})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		target, _, err := s.Create(ctx, &CreateRequest{Email: uuid.NewString() + "@example.com"})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		_, err = s.Verify(ctx, verifier, target.ID)
		if role.CanVerify() && err != nil {
			t.Fatalf("PROPERTY VIOLATION: role %s could not verify: %v", role, err)
		}
		if !role.CanVerify() && !errors.Is(err, models.ErrForbidden) {
			t.Fatalf("PROPERTY VIOLATION: role %s verified a profile (err=%v)", role, err)
		}
	})
}

func TestSetRole(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	admin := mustCreate(t, s, "root@example.com", models.RoleAdmin)
	user := mustCreate(t, s, "user@example.com", models.RoleIndividual)

	if _, err := s.SetRole(ctx, user, user.ID, models.RoleAdmin); !errors.Is(err, ErrNotAdmin) {
		t.Errorf("non-admin: expected ErrNotAdmin, got %v", err)
	}
	if _, err := s.SetRole(ctx, admin, user.ID, models.Role("overlord")); !errors.Is(err, models.ErrValidation) {
		t.Errorf("unknown role: expected validation error, got %v", err)
	}
	resp, err := s.SetRole(ctx, admin, user.ID, models.RoleCampusHead)
	if err != nil {
		t.Fatalf("SetRole failed: %v", err)
	}
	if resp.Role != models.RoleCampusHead {
		t.Errorf("role = %s", resp.Role)
	}
}

func TestListProfiles(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	admin := mustCreate(t, s, "lister@example.com", models.RoleAdmin)
	for i := 0; i < 3; i++ {
		mustCreate(t, s, uuid.NewString()+"@example.com", models.RoleAmbassador)
	}

	if _, err := s.ListProfiles(ctx, mustCreate(t, s, "nosy@example.com", models.RoleIndividual), "", 1, 10); !errors.Is(err, ErrNotAdmin) {
		t.Errorf("expected ErrNotAdmin, got %v", err)
	}

	resp, err := s.ListProfiles(ctx, admin, models.RoleAmbassador, 1, 2)
	if err != nil {
		t.Fatalf("ListProfiles failed: %v", err)
	}
	if resp.Total != 3 || len(resp.Profiles) != 2 || resp.TotalPages != 2 {
		t.Errorf("unexpected page: total=%d len=%d pages=%d", resp.Total, len(resp.Profiles), resp.TotalPages)
	}
}

func TestUpsertFromIdentity(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	created, isNew, err := s.UpsertFromIdentity(ctx, &ExternalUser{
		Subject:     "user_new",
		Email:       "New@Example.com",
		DisplayName: strPtr("Newbie"),
	})
	if err != nil {
		t.Fatalf("UpsertFromIdentity failed: %v", err)
	}
	if !isNew || created.Role != models.RoleIndividual || created.AccountType != models.AccountTypeIndividual {
		t.Errorf("unexpected created profile: new=%v %+v", isNew, created)
	}
	if _, err := s.store.Wallets().GetByUser(ctx, created.ID); err != nil {
		t.Errorf("wallet not created with the profile: %v", err)
	}

	updated, isNew, err := s.UpsertFromIdentity(ctx, &ExternalUser{
		Subject:  "user_new",
		Email:    "new@example.com",
		ImageURL: strPtr("https://img.example.com/a.png"),
	})
	if err != nil {
		t.Fatalf("UpsertFromIdentity update failed: %v", err)
	}
	if isNew || updated.ID != created.ID || updated.AvatarURL == nil {
		t.Errorf("expected refresh of existing profile: new=%v %+v", isNew, updated)
	}
	if updated.DisplayName == nil || *updated.DisplayName != "Newbie" {
		t.Error("fields absent from the event should be kept")
	}
}

func TestUpsertLinksExistingEmail(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	local := mustCreate(t, s, "linked@example.com", models.RoleMaintainer)

	p, isNew, err := s.UpsertFromIdentity(ctx, &ExternalUser{Subject: "user_link", Email: "linked@example.com"})
	if err != nil {
		t.Fatalf("UpsertFromIdentity failed: %v", err)
	}
	if isNew || p.ID != local.ID {
		t.Fatalf("expected link to existing profile, got new=%v id=%s", isNew, p.ID)
	}
	if p.Role != models.RoleMaintainer {
		t.Error("linking must not reset the role")
	}

	resolved, err := s.Resolve(ctx, &models.Identity{Subject: "user_link"})
	if err != nil || resolved.ID != local.ID {
		t.Fatalf("subject not linked: %v", err)
	}
}

func TestUpsertRequiresEmail(t *testing.T) {
	s := newTestService(t)
	_, _, err := s.UpsertFromIdentity(context.Background(), &ExternalUser{Subject: "user_x"})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreatePublishesEvent(t *testing.T) {
	bus := broker.NewLocalBus()
	defer bus.Close()

	var got []string
	if _, err := bus.Subscribe("gigsy.profile.>", func(_ context.Context, subject string, _ []byte) {
		got = append(got, subject)
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	s := NewService(memory.New(), bus)
	p := mustCreate(t, s, "events@example.com", models.RoleIndividual)
	if _, err := s.UpdateProfile(context.Background(), identityOf(p), p.ID, &UpdateProfileRequest{Bio: strPtr("gg")}); err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}

	if len(got) != 2 || got[0] != broker.SubjectProfileCreated || got[1] != broker.SubjectProfileUpdated {
		t.Errorf("unexpected events: %v", got)
	}
}

func TestMutationsCompleteAfterRequestCancelled(t *testing.T) {
	s := newTestService(t)
	admin := mustCreate(t, s, "admin@example.com", models.RoleAdmin)
	ambassador := mustCreate(t, s, "amb@example.com", models.RoleAmbassador)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, _, err := s.Create(ctx, &CreateRequest{Email: "gone@example.com"})
	if err != nil {
		t.Fatalf("Create with abandoned request failed: %v", err)
	}
	if _, err := s.Verify(ctx, ambassador, p.ID); err != nil {
		t.Errorf("Verify with abandoned request failed: %v", err)
	}
	if _, err := s.SetRole(ctx, admin, p.ID, models.RoleMaintainer); err != nil {
		t.Errorf("SetRole with abandoned request failed: %v", err)
	}
	if _, _, err := s.UpsertFromIdentity(ctx, &ExternalUser{Subject: "user_gone", Email: "gone@example.com"}); err != nil {
		t.Errorf("UpsertFromIdentity with abandoned request failed: %v", err)
	}

	stored, err := s.store.Profiles().Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("profile not persisted: %v", err)
	}
	if !stored.IsVerified || stored.Role != models.RoleMaintainer {
		t.Errorf("mutations not persisted: verified=%v role=%s", stored.IsVerified, stored.Role)
	}
	if stored.Subject == nil || *stored.Subject != "user_gone" {
		t.Errorf("subject not linked: %v", stored.Subject)
	}
}
