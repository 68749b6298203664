package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/aimerfeng/Gigsy/internal/store/memory"
	"github.com/aimerfeng/Gigsy/internal/store/storetest"
	"github.com/aimerfeng/Gigsy/internal/wallet"
	"github.com/google/uuid"
	"pgregory.net/rapid"
)

func setup(t *testing.T) (*Service, store.Store, *models.Profile) {
	t.Helper()
	st := memory.New()
	s := NewService(st, wallet.NewService(st, nil), nil)
	org, _ := storetest.NewProfile(t, st, "organizer-"+uuid.NewString()[:8]+"@example.com")
	org.Role = models.RoleAmbassador
	return s, st, org
}

func newEvent(t *testing.T, s *Service, org *models.Profile, capacity *int, reward int64) *models.Event {
	t.Helper()
	start := time.Now().Add(24 * time.Hour)
	e, err := s.CreateEvent(context.Background(), org, &CreateEventRequest{
		Title:           "Campus LAN Party",
		StartDate:       start,
		EndDate:         start.Add(4 * time.Hour),
		MaxParticipants: capacity,
		RewardAmount:    reward,
	})
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	return e
}

func intPtr(n int) *int { return &n }

func TestCreateEvent(t *testing.T) {
	s, st, org := setup(t)
	ctx := context.Background()

	e := newEvent(t, s, org, intPtr(10), 50)
	if e.Status != models.EventStatusUpcoming || e.OrganizerID != org.ID {
		t.Errorf("unexpected event: %+v", e)
	}

	player, _ := storetest.NewProfile(t, st, "player@example.com")
	if _, err := s.CreateEvent(ctx, player, &CreateEventRequest{Title: "x"}); !errors.Is(err, ErrCannotOrganize) {
		t.Errorf("expected ErrCannotOrganize, got %v", err)
	}

	start := time.Now().Add(time.Hour)
	tests := map[string]*CreateEventRequest{
		"no title":       {Title: " ", StartDate: start, EndDate: start.Add(time.Hour)},
		"end before":     {Title: "x", StartDate: start, EndDate: start.Add(-time.Hour)},
		"zero capacity":  {Title: "x", StartDate: start, EndDate: start.Add(time.Hour), MaxParticipants: intPtr(0)},
		"negative prize": {Title: "x", StartDate: start, EndDate: start.Add(time.Hour), RewardAmount: -1},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := s.CreateEvent(ctx, org, req); !errors.Is(err, models.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	s, st, org := setup(t)
	ctx := context.Background()
	e := newEvent(t, s, org, intPtr(1), 0)
	alice, _ := storetest.NewProfile(t, st, "alice@example.com")
	bob, _ := storetest.NewProfile(t, st, "bob@example.com")

	reg, err := s.Register(ctx, e.ID, alice.ID)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if reg.Status != models.RegistrationStatusRegistered || reg.RewardClaimed {
		t.Errorf("unexpected registration: %+v", reg)
	}

	if _, err := s.Register(ctx, e.ID, alice.ID); !errors.Is(err, models.ErrAlreadyRegistered) {
		t.Errorf("second registration: expected AlreadyRegistered, got %v", err)
	}
	if _, err := s.Register(ctx, e.ID, bob.ID); !errors.Is(err, models.ErrFull) {
		t.Errorf("over capacity: expected Full, got %v", err)
	}
	if _, err := s.Register(ctx, uuid.New(), bob.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("missing event: expected NotFound, got %v", err)
	}

	detail, err := s.GetEvent(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if detail.Registered != 1 {
		t.Errorf("registered = %d, want 1", detail.Registered)
	}

	if _, err := s.CancelEvent(ctx, org, e.ID); err != nil {
		t.Fatalf("CancelEvent failed: %v", err)
	}
	if _, err := s.Register(ctx, e.ID, bob.ID); !errors.Is(err, ErrEventClosed) {
		t.Errorf("cancelled event: expected ErrEventClosed, got %v", err)
	}
}

// TestProperty_CapacityNeverExceeded tests concurrent registration.
// *For any* capacity and number of concurrent registrants, the number of
// registrations SHALL never exceed max_participants, and every rejected
// registrant SHALL see Full.
func TestProperty_CapacityNeverExceeded(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s, st, org := setup(t)
		capacity := rapid.IntRange(1, 5).Draw(rt, "capacity")
		users := rapid.IntRange(1, 10).Draw(rt, "users")
		e := newEvent(t, s, org, intPtr(capacity), 0)

		ids := make([]uuid.UUID, users)
		for i := range ids {
			p, _ := storetest.NewProfile(t, st, "u-"+uuid.NewString()[:8]+"@example.com")
			ids[i] = p.ID
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		ok, full := 0, 0
		var unexpected []error
		for _, id := range ids {
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				_, err := s.Register(context.Background(), e.ID, id)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case errors.Is(err, models.ErrFull):
					full++
				default:
					unexpected = append(unexpected, err)
				}
			}(id)
		}
		wg.Wait()

		if len(unexpected) > 0 {
			rt.Fatalf("unexpected registration errors: %v", unexpected)
		}
		want := min(capacity, users)
		if ok != want || full != users-want {
			rt.Fatalf("PROPERTY VIOLATION: capacity %d, %d users: ok=%d full=%d", capacity, users, ok, full)
		}
		n, _ := st.Registrations().CountByEvent(context.Background(), e.ID)
		if n > capacity {
			rt.Fatalf("PROPERTY VIOLATION: %d registrations for capacity %d", n, capacity)
		}
	})
}

func TestMarkAttendance(t *testing.T) {
	s, st, org := setup(t)
	ctx := context.Background()
	e := newEvent(t, s, org, nil, 0)
	player, _ := storetest.NewProfile(t, st, "player@example.com")
	reg, err := s.Register(ctx, e.ID, player.ID)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, err := s.MarkAttendance(ctx, player, reg.ID, models.RegistrationStatusAttended); !errors.Is(err, ErrNotOrganizer) {
		t.Errorf("expected ErrNotOrganizer, got %v", err)
	}
	if _, err := s.MarkAttendance(ctx, org, reg.ID, models.RegistrationStatusRegistered); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}

	got, err := s.MarkAttendance(ctx, org, reg.ID, models.RegistrationStatusNoShow)
	if err != nil {
		t.Fatalf("MarkAttendance failed: %v", err)
	}
	if got.Status != models.RegistrationStatusNoShow {
		t.Errorf("status = %s", got.Status)
	}
	if _, err := s.MarkAttendance(ctx, org, reg.ID, models.RegistrationStatusAttended); !errors.Is(err, ErrAttendanceRecorded) {
		t.Errorf("expected ErrAttendanceRecorded, got %v", err)
	}
}

func TestClaimReward(t *testing.T) {
	s, st, org := setup(t)
	ctx := context.Background()
	e := newEvent(t, s, org, nil, 75)
	player, w := storetest.NewProfile(t, st, "player@example.com")
	reg, err := s.Register(ctx, e.ID, player.ID)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, err := s.ClaimReward(ctx, player, reg.ID); !errors.Is(err, ErrNotAttended) {
		t.Errorf("claim before attendance: expected ErrNotAttended, got %v", err)
	}
	if _, err := s.MarkAttendance(ctx, org, reg.ID, models.RegistrationStatusAttended); err != nil {
		t.Fatalf("MarkAttendance failed: %v", err)
	}
	if _, err := s.ClaimReward(ctx, org, reg.ID); !errors.Is(err, ErrNotRegistrant) {
		t.Errorf("claim by someone else: expected ErrNotRegistrant, got %v", err)
	}

	resp, err := s.ClaimReward(ctx, player, reg.ID)
	if err != nil {
		t.Fatalf("ClaimReward failed: %v", err)
	}
	if !resp.Registration.RewardClaimed || resp.Transaction == nil || resp.Transaction.Amount != 75 {
		t.Errorf("unexpected claim: %+v", resp)
	}
	if resp.Transaction.Type != models.TransactionTypeReward {
		t.Errorf("transaction type = %s", resp.Transaction.Type)
	}

	if _, err := s.ClaimReward(ctx, player, reg.ID); !errors.Is(err, ErrRewardClaimed) {
		t.Errorf("second claim: expected ErrRewardClaimed, got %v", err)
	}

	got, err := st.Wallets().Get(ctx, w.ID)
	if err != nil {
		t.Fatalf("failed to reload wallet: %v", err)
	}
	if got.Balance != 75 || got.TotalEarned != 75 {
		t.Errorf("reward paid more than once: balance=%d earned=%d", got.Balance, got.TotalEarned)
	}
}

// TestProperty_RewardPaidOnce tests claim idempotency under concurrency.
// *For any* number of concurrent claims on one attended registration, exactly
// one SHALL succeed and the wallet SHALL be credited exactly once.
func TestProperty_RewardPaidOnce(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s, st, org := setup(t)
		ctx := context.Background()
		reward := rapid.Int64Range(1, 1000).Draw(rt, "reward")
		claims := rapid.IntRange(1, 6).Draw(rt, "claims")

		e := newEvent(t, s, org, nil, reward)
		player, w := storetest.NewProfile(t, st, "p-"+uuid.NewString()[:8]+"@example.com")
		reg, err := s.Register(ctx, e.ID, player.ID)
		if err != nil {
			rt.Fatalf("Register failed: %v", err)
		}
		if _, err := s.MarkAttendance(ctx, org, reg.ID, models.RegistrationStatusAttended); err != nil {
			rt.Fatalf("MarkAttendance failed: %v", err)
		}

		var wg sync.WaitGroup
		errs := make([]error, claims)
		for i := 0; i < claims; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = s.ClaimReward(context.Background(), player, reg.ID)
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
			} else if !errors.Is(err, models.ErrInvalidState) {
				rt.Fatalf("unexpected claim error: %v", err)
			}
		}
		if wins != 1 {
			rt.Fatalf("PROPERTY VIOLATION: %d successful claims", wins)
		}

		got, _ := st.Wallets().Get(ctx, w.ID)
		if got.Balance != reward {
			rt.Fatalf("PROPERTY VIOLATION: balance %d, reward %d", got.Balance, reward)
		}
		txs, _, _ := st.Wallets().ListTransactions(ctx, w.ID, 100, 0)
		if len(txs) != 1 {
			rt.Fatalf("PROPERTY VIOLATION: %d reward transactions", len(txs))
		}
	})
}

func TestClaimZeroReward(t *testing.T) {
	s, st, org := setup(t)
	ctx := context.Background()
	e := newEvent(t, s, org, nil, 0)
	player, _ := storetest.NewProfile(t, st, "player@example.com")
	reg, _ := s.Register(ctx, e.ID, player.ID)
	if _, err := s.MarkAttendance(ctx, org, reg.ID, models.RegistrationStatusAttended); err != nil {
		t.Fatalf("MarkAttendance failed: %v", err)
	}

	resp, err := s.ClaimReward(ctx, player, reg.ID)
	if err != nil {
		t.Fatalf("ClaimReward failed: %v", err)
	}
	if resp.Transaction != nil || !resp.Registration.RewardClaimed {
		t.Errorf("zero reward should mark claimed without a transaction: %+v", resp)
	}
}

func TestListRegistrationsVisibility(t *testing.T) {
	s, st, org := setup(t)
	ctx := context.Background()
	e := newEvent(t, s, org, nil, 0)
	alice, _ := storetest.NewProfile(t, st, "alice@example.com")
	bob, _ := storetest.NewProfile(t, st, "bob@example.com")
	for _, p := range []*models.Profile{alice, bob} {
		if _, err := s.Register(ctx, e.ID, p.ID); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	all, err := s.ListRegistrations(ctx, org, e.ID)
	if err != nil || len(all) != 2 {
		t.Fatalf("organizer should see 2 registrations, got %d (%v)", len(all), err)
	}
	own, err := s.ListRegistrations(ctx, alice, e.ID)
	if err != nil || len(own) != 1 || own[0].UserID != alice.ID {
		t.Fatalf("registrant should see only their own, got %v (%v)", own, err)
	}
}

func TestListEvents(t *testing.T) {
	s, _, org := setup(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		newEvent(t, s, org, nil, 0)
	}

	resp, err := s.ListEvents(ctx, &ListEventsRequest{Status: models.EventStatusUpcoming, PageSize: 2})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if resp.Total != 3 || len(resp.Events) != 2 || resp.TotalPages != 2 {
		t.Errorf("unexpected page: %+v", resp)
	}
	for i := 1; i < len(resp.Events); i++ {
		if resp.Events[i].StartDate.Before(resp.Events[i-1].StartDate) {
			t.Error("events must be ordered by start date ascending")
		}
	}
	if _, err := s.ListEvents(ctx, &ListEventsRequest{Status: "paused"}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestAdvanceLifecycle(t *testing.T) {
	s, _, org := setup(t)
	ctx := context.Background()
	e := newEvent(t, s, org, nil, 0)
	cancelled := newEvent(t, s, org, nil, 0)
	if _, err := s.CancelEvent(ctx, org, cancelled.ID); err != nil {
		t.Fatalf("CancelEvent failed: %v", err)
	}

	result, err := s.AdvanceLifecycle(ctx)
	if err != nil {
		t.Fatalf("AdvanceLifecycle failed: %v", err)
	}
	if result.Started != 0 || result.Completed != 0 {
		t.Errorf("nothing is due yet: %+v", result)
	}

	s.now = func() time.Time { return e.StartDate.Add(time.Minute) }
	result, err = s.AdvanceLifecycle(ctx)
	if err != nil {
		t.Fatalf("AdvanceLifecycle failed: %v", err)
	}
	if result.Started != 1 {
		t.Errorf("started = %d, want 1", result.Started)
	}

	s.now = func() time.Time { return e.EndDate.Add(time.Minute) }
	result, err = s.AdvanceLifecycle(ctx)
	if err != nil {
		t.Fatalf("AdvanceLifecycle failed: %v", err)
	}
	if result.Completed != 1 {
		t.Errorf("completed = %d, want 1", result.Completed)
	}

	got, err := s.GetEvent(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if got.Status != models.EventStatusCompleted {
		t.Errorf("status = %s", got.Status)
	}
	still, _ := s.GetEvent(ctx, cancelled.ID)
	if still.Status != models.EventStatusCancelled {
		t.Errorf("cancelled event moved to %s", still.Status)
	}
}

func TestSchedulerRunNow(t *testing.T) {
	s, _, org := setup(t)
	e := newEvent(t, s, org, nil, 0)
	s.now = func() time.Time { return e.StartDate.Add(time.Second) }

	sched := NewScheduler(s, &SchedulerConfig{Interval: time.Hour})
	result, err := sched.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}
	if result.Started != 1 {
		t.Errorf("started = %d, want 1", result.Started)
	}

	status := sched.GetStatus()
	if status.Running || status.LastRun == nil || status.LastResult != result {
		t.Errorf("unexpected status: %+v", status)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := sched.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}
	sched.Stop()
	if sched.IsRunning() {
		t.Error("scheduler still running after Stop")
	}
}
