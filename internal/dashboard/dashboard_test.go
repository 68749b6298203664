package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/store/memory"
	"github.com/aimerfeng/Gigsy/internal/store/storetest"
	"github.com/google/uuid"
	"pgregory.net/rapid"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		role    models.Role
		variant Variant
		status  Status
	}{
		{models.RoleAdmin, VariantAdmin, StatusOK},
		{models.RoleMaintainer, VariantMaintainer, StatusOK},
		{models.RoleAmbassador, VariantAmbassador, StatusOK},
		{models.RoleCampusHead, VariantAmbassador, StatusOK},
		{models.RoleRegional, VariantAmbassador, StatusOK},
		{models.RoleGroup, VariantGroup, StatusOK},
		{models.RoleIndividual, VariantIndividual, StatusOK},
		{"", VariantNone, StatusNoRole},
		{"superuser", VariantNone, StatusUnknownRole},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			got := Select(tt.role)
			if got.Variant != tt.variant || got.Status != tt.status {
				t.Errorf("Select(%q) = %+v, want variant=%q status=%q", tt.role, got, tt.variant, tt.status)
			}
		})
	}
}

// TestProperty_SelectTotal tests that selection is total over strings.
// *For any* role string, Select SHALL return ok with a variant exactly when the
// role is known, and otherwise a non-ok status with no variant.
func TestProperty_SelectTotal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var role models.Role
		if rapid.Bool().Draw(t, "known") {
			role = rapid.SampledFrom(models.AllRoles).Draw(t, "role")
		} else {
			role = models.Role(rapid.String().Draw(t, "raw"))
		}

		sel := Select(role)
		if role.Valid() {
			if sel.Status != StatusOK || sel.Variant == VariantNone {
				t.Fatalf("PROPERTY VIOLATION: known role %q selected %+v", role, sel)
			}
			return
		}
		if sel.Status == StatusOK || sel.Variant != VariantNone {
			t.Fatalf("PROPERTY VIOLATION: unknown role %q selected %+v", role, sel)
		}
		if role == "" && sel.Status != StatusNoRole {
			t.Fatalf("PROPERTY VIOLATION: empty role reported %s", sel.Status)
		}
	})
}

func TestSummary(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	s := NewService(st)

	owner, _ := storetest.NewProfile(t, st, "owner@example.com")
	freelancer, wallet := storetest.NewProfile(t, st, "freelancer@example.com")
	now := time.Now().UTC()

	wallet.Balance, wallet.TotalEarned, wallet.TotalSpent = 70, 100, 30
	if err := st.Wallets().Update(ctx, wallet); err != nil {
		t.Fatalf("failed to update wallet: %v", err)
	}

	won := &models.Project{ID: uuid.New(), OwnerID: owner.ID, Title: "won", Budget: 10, Deadline: now.Add(time.Hour),
		Status: models.ProjectStatusInProgress, CreatedAt: now, UpdatedAt: now}
	open := &models.Project{ID: uuid.New(), OwnerID: owner.ID, Title: "open", Budget: 10, Deadline: now.Add(time.Hour),
		Status: models.ProjectStatusOpen, CreatedAt: now, UpdatedAt: now}
	for _, p := range []*models.Project{won, open} {
		if err := st.Projects().Create(ctx, p); err != nil {
			t.Fatalf("failed to create project: %v", err)
		}
	}
	for _, b := range []*models.Bid{
		{ID: uuid.New(), ProjectID: won.ID, BidderID: freelancer.ID, Amount: 10, Proposal: "x", Status: models.BidStatusAccepted, CreatedAt: now, UpdatedAt: now},
		{ID: uuid.New(), ProjectID: open.ID, BidderID: freelancer.ID, Amount: 10, Proposal: "y", Status: models.BidStatusPending, CreatedAt: now, UpdatedAt: now},
	} {
		if err := st.Bids().Create(ctx, b); err != nil {
			t.Fatalf("failed to create bid: %v", err)
		}
	}

	event := &models.Event{ID: uuid.New(), OrganizerID: owner.ID, Title: "Cup", StartDate: now.Add(time.Hour),
		EndDate: now.Add(2 * time.Hour), Status: models.EventStatusUpcoming, CreatedAt: now, UpdatedAt: now}
	if err := st.Events().Create(ctx, event); err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	if err := st.Registrations().Create(ctx, &models.EventRegistration{ID: uuid.New(), EventID: event.ID, UserID: freelancer.ID,
		Status: models.RegistrationStatusRegistered, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("failed to create registration: %v", err)
	}

	sum, err := s.Summary(ctx, freelancer)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if sum.Selection.Variant != VariantIndividual {
		t.Errorf("variant = %s", sum.Selection.Variant)
	}
	if sum.Balance != 70 || sum.TotalEarned != 100 || sum.TotalSpent != 30 {
		t.Errorf("wallet figures wrong: %+v", sum)
	}
	if sum.ActiveProjects != 1 || sum.PendingBids != 1 || sum.AcceptedBids != 1 {
		t.Errorf("project figures wrong: active=%d pending=%d accepted=%d", sum.ActiveProjects, sum.PendingBids, sum.AcceptedBids)
	}
	if sum.UpcomingRegistrations != 1 {
		t.Errorf("upcoming registrations = %d", sum.UpcomingRegistrations)
	}
	if sum.OrganizedEvents != nil {
		t.Error("individual variant must not carry staff figures")
	}

	owner.Role = models.RoleCampusHead
	staff, err := s.Summary(ctx, owner)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if staff.Selection.Variant != VariantAmbassador || staff.OrganizedEvents == nil || *staff.OrganizedEvents != 1 {
		t.Errorf("staff summary wrong: %+v", staff)
	}
	if staff.OpenProjects != 1 || staff.ActiveProjects != 1 {
		t.Errorf("owner project figures wrong: open=%d active=%d", staff.OpenProjects, staff.ActiveProjects)
	}
}

func TestSummaryUnknownRole(t *testing.T) {
	s := NewService(memory.New())
	p := &models.Profile{ID: uuid.New(), Role: "ghost", Level: 3}

	sum, err := s.Summary(context.Background(), p)
	if err != nil {
		t.Fatalf("unknown role must not be an error: %v", err)
	}
	if sum.Selection.Status != StatusUnknownRole || sum.Level != 3 {
		t.Errorf("unexpected summary: %+v", sum)
	}
}
