// Package storetest is the behavioural contract every store.Store
// implementation must satisfy.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/google/uuid"
)

// Factory returns an empty store for one subtest
type Factory func(t *testing.T) store.Store

// Run executes the contract against stores built by newStore
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"ProfileEmailUniqueCaseInsensitive", testProfileEmailUnique},
		{"ProfileLookupBySubject", testProfileBySubject},
		{"WithTxRollsBackOnError", testWithTxRollback},
		{"WithTxCommits", testWithTxCommit},
		{"TransactionsIncludeIncoming", testTransactionsIncludeIncoming},
		{"LeaderboardOrdering", testLeaderboard},
		{"BidUniquePerBidder", testBidUnique},
		{"RejectPendingSkipsAccepted", testRejectPending},
		{"ProjectFilter", testProjectFilter},
		{"EventsOrderedByStart", testEventsOrdered},
		{"RegistrationUniquePerUser", testRegistrationUnique},
		{"MessageSequence", testMessageSequence},
		{"MessageCursorUnderConcurrentSends", testMessageCursorConcurrent},
		{"NotFound", testNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// base is truncated to microseconds so values survive a Postgres round trip
var base = time.Now().UTC().Truncate(time.Microsecond)

// NewProfile inserts a profile with a wallet and returns both
func NewProfile(t *testing.T, s store.Store, email string) (*models.Profile, *models.Wallet) {
	t.Helper()
	ctx := context.Background()
	p := &models.Profile{
		ID:          uuid.New(),
		Email:       email,
		AccountType: models.AccountTypeIndividual,
		Role:        models.RoleIndividual,
		Skills:      []string{},
		Level:       1,
		CreatedAt:   base,
		UpdatedAt:   base,
	}
	w := &models.Wallet{ID: uuid.New(), UserID: p.ID, CreatedAt: base, UpdatedAt: base}
	err := s.WithTx(ctx, func(r store.Repos) error {
		if err := r.Profiles().Create(ctx, p); err != nil {
			return err
		}
		return r.Wallets().Create(ctx, w)
	})
	if err != nil {
		t.Fatalf("failed to create profile %s: %v", email, err)
	}
	return p, w
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%s@example.com", prefix, uuid.NewString()[:8])
}

func newProject(t *testing.T, s store.Store, owner uuid.UUID, status models.ProjectStatus, skills []string, created time.Time) *models.Project {
	t.Helper()
	p := &models.Project{
		ID:             uuid.New(),
		OwnerID:        owner,
		Title:          "Build a speedrun tracker",
		Description:    "desc",
		Budget:         500,
		Deadline:       base.Add(72 * time.Hour),
		Status:         status,
		SkillsRequired: skills,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	if err := s.Projects().Create(context.Background(), p); err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	return p
}

func newBid(t *testing.T, s store.Store, projectID, bidder uuid.UUID) *models.Bid {
	t.Helper()
	b := &models.Bid{
		ID:        uuid.New(),
		ProjectID: projectID,
		BidderID:  bidder,
		Amount:    100,
		Proposal:  "I can do it",
		Status:    models.BidStatusPending,
		CreatedAt: base,
		UpdatedAt: base,
	}
	if err := s.Bids().Create(context.Background(), b); err != nil {
		t.Fatalf("failed to create bid: %v", err)
	}
	return b
}

func newEvent(t *testing.T, s store.Store, organizer uuid.UUID, start time.Time) *models.Event {
	t.Helper()
	e := &models.Event{
		ID:          uuid.New(),
		OrganizerID: organizer,
		Title:       "LAN night",
		StartDate:   start,
		EndDate:     start.Add(2 * time.Hour),
		Status:      models.EventStatusUpcoming,
		CreatedAt:   base,
		UpdatedAt:   base,
	}
	if err := s.Events().Create(context.Background(), e); err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	return e
}

func testProfileEmailUnique(t *testing.T, s store.Store) {
	ctx := context.Background()
	email := uniqueEmail("dup")
	NewProfile(t, s, email)

	clone := &models.Profile{
		ID:          uuid.New(),
		Email:       strings.ToUpper(email),
		AccountType: models.AccountTypeIndividual,
		Role:        models.RoleIndividual,
		Level:       1,
		CreatedAt:   base,
		UpdatedAt:   base,
	}
	err := s.Profiles().Create(ctx, clone)
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for a case-variant email, got %v", err)
	}
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("duplicate must classify as conflict, got %v", err)
	}

	got, err := s.Profiles().GetByEmail(ctx, strings.ToUpper(email))
	if err != nil {
		t.Fatalf("lookup by email should ignore case: %v", err)
	}
	if got.Email != email {
		t.Fatalf("expected stored email %s, got %s", email, got.Email)
	}
}

func testProfileBySubject(t *testing.T, s store.Store) {
	ctx := context.Background()
	p, _ := NewProfile(t, s, uniqueEmail("subject"))

	subject := "user_" + uuid.NewString()
	p.Subject = &subject
	p.UpdatedAt = base.Add(time.Minute)
	if err := s.Profiles().Update(ctx, p); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := s.Profiles().GetBySubject(ctx, subject)
	if err != nil {
		t.Fatalf("lookup by subject failed: %v", err)
	}
	if got.ID != p.ID {
		t.Fatalf("expected %s, got %s", p.ID, got.ID)
	}
	if !got.UpdatedAt.Equal(p.UpdatedAt) {
		t.Fatalf("updated_at not persisted: %v", got.UpdatedAt)
	}
}

func testWithTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, w := NewProfile(t, s, uniqueEmail("rollback"))
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(r store.Repos) error {
		locked, err := r.Wallets().GetForUpdate(ctx, w.ID)
		if err != nil {
			return err
		}
		locked.Balance, locked.TotalEarned = 500, 500
		if err := r.Wallets().Update(ctx, locked); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the unit's error back, got %v", err)
	}

	got, err := s.Wallets().Get(ctx, w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Balance != 0 || got.TotalEarned != 0 {
		t.Fatalf("rolled back write is visible: %+v", got)
	}
}

func testWithTxCommit(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, w := NewProfile(t, s, uniqueEmail("commit"))

	err := s.WithTx(ctx, func(r store.Repos) error {
		locked, err := r.Wallets().GetForUpdate(ctx, w.ID)
		if err != nil {
			return err
		}
		locked.Balance, locked.TotalEarned = 70, 70
		return r.Wallets().Update(ctx, locked)
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Wallets().GetByUser(ctx, w.UserID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Balance != 70 || !got.Consistent() {
		t.Fatalf("unexpected wallet after commit: %+v", got)
	}
}

func testTransactionsIncludeIncoming(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, a := NewProfile(t, s, uniqueEmail("sender"))
	_, b := NewProfile(t, s, uniqueEmail("receiver"))

	rows := []*models.Transaction{
		{ID: uuid.New(), WalletID: a.ID, Amount: 100, Type: models.TransactionTypeDeposit, Status: models.TransactionStatusCompleted, CreatedAt: base},
		{ID: uuid.New(), WalletID: a.ID, Amount: -40, Type: models.TransactionTypeTransfer, Status: models.TransactionStatusCompleted, RecipientWalletID: &b.ID, CreatedAt: base.Add(time.Second)},
		{ID: uuid.New(), WalletID: b.ID, Amount: 5, Type: models.TransactionTypeReward, Status: models.TransactionStatusCompleted, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, tx := range rows {
		if err := s.Wallets().InsertTransaction(ctx, tx); err != nil {
			t.Fatal(err)
		}
	}

	list, total, err := s.Wallets().ListTransactions(ctx, b.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(list) != 2 {
		t.Fatalf("expected 2 rows for the receiver, got total=%d len=%d", total, len(list))
	}
	if list[0].ID != rows[2].ID || list[1].ID != rows[1].ID {
		t.Fatal("transactions must be ordered newest first")
	}

	page, total, err := s.Wallets().ListTransactions(ctx, a.ID, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(page) != 1 || page[0].ID != rows[0].ID {
		t.Fatalf("unexpected second page for the sender: total=%d rows=%v", total, page)
	}
}

func testLeaderboard(t *testing.T, s store.Store) {
	ctx := context.Background()
	var ids []uuid.UUID
	for i, earned := range []int64{10, 300, 50} {
		_, w := NewProfile(t, s, uniqueEmail(fmt.Sprintf("rank%d", i)))
		w.Balance, w.TotalEarned = earned, earned
		if err := s.Wallets().Update(ctx, w); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, w.UserID)
	}

	top, err := s.Wallets().TopEarners(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(top))
	}
	if top[0].UserID != ids[1] || top[1].UserID != ids[2] {
		t.Fatal("leaderboard must rank by total earned")
	}
	if top[0].Rank != 1 || top[1].Rank != 2 {
		t.Fatalf("ranks must start at 1: %d, %d", top[0].Rank, top[1].Rank)
	}
}

func testBidUnique(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner, _ := NewProfile(t, s, uniqueEmail("owner"))
	bidder, _ := NewProfile(t, s, uniqueEmail("bidder"))
	p := newProject(t, s, owner.ID, models.ProjectStatusOpen, nil, base)
	newBid(t, s, p.ID, bidder.ID)

	dup := &models.Bid{
		ID: uuid.New(), ProjectID: p.ID, BidderID: bidder.ID, Amount: 90, Proposal: "again",
		Status: models.BidStatusPending, CreatedAt: base, UpdatedAt: base,
	}
	if err := s.Bids().Create(ctx, dup); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for a second bid, got %v", err)
	}
}

func testRejectPending(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner, _ := NewProfile(t, s, uniqueEmail("owner"))
	p := newProject(t, s, owner.ID, models.ProjectStatusOpen, nil, base)

	var bids []*models.Bid
	for i := 0; i < 3; i++ {
		bidder, _ := NewProfile(t, s, uniqueEmail(fmt.Sprintf("bidder%d", i)))
		bids = append(bids, newBid(t, s, p.ID, bidder.ID))
	}

	keep := bids[1]
	n, err := s.Bids().RejectPending(ctx, p.ID, keep.ID, base.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rejected, got %d", n)
	}

	list, err := s.Bids().ListByProject(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range list {
		want := models.BidStatusRejected
		if b.ID == keep.ID {
			want = models.BidStatusPending
		}
		if b.Status != want {
			t.Fatalf("bid %s: expected %s, got %s", b.ID, want, b.Status)
		}
	}
}

func testProjectFilter(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner, _ := NewProfile(t, s, uniqueEmail("filter"))
	newProject(t, s, owner.ID, models.ProjectStatusOpen, []string{"unity"}, base)
	newest := newProject(t, s, owner.ID, models.ProjectStatusOpen, []string{"unity", "blender"}, base.Add(time.Minute))
	newProject(t, s, owner.ID, models.ProjectStatusCompleted, []string{"unity"}, base)

	list, total, err := s.Projects().List(ctx, store.ProjectFilter{
		Status:  models.ProjectStatusOpen,
		OwnerID: &owner.ID,
		Skill:   "unity",
		Limit:   1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Fatalf("expected 2 matching projects, got %d", total)
	}
	if len(list) != 1 || list[0].ID != newest.ID {
		t.Fatal("expected newest open project first")
	}
	if len(list[0].SkillsRequired) != 2 {
		t.Fatalf("skills not round-tripped: %v", list[0].SkillsRequired)
	}
}

func testEventsOrdered(t *testing.T, s store.Store) {
	ctx := context.Background()
	organizer, _ := NewProfile(t, s, uniqueEmail("org"))
	late := newEvent(t, s, organizer.ID, base.Add(48*time.Hour))
	early := newEvent(t, s, organizer.ID, base.Add(24*time.Hour))

	list, _, err := s.Events().List(ctx, store.EventFilter{Status: models.EventStatusUpcoming})
	if err != nil {
		t.Fatal(err)
	}
	pos := map[uuid.UUID]int{}
	for i, e := range list {
		pos[e.ID] = i
	}
	if pos[early.ID] >= pos[late.ID] {
		t.Fatal("events must be ordered by start date ascending")
	}
}

func testRegistrationUnique(t *testing.T, s store.Store) {
	ctx := context.Background()
	organizer, _ := NewProfile(t, s, uniqueEmail("org"))
	user, _ := NewProfile(t, s, uniqueEmail("player"))
	e := newEvent(t, s, organizer.ID, base.Add(time.Hour))

	reg := &models.EventRegistration{
		ID: uuid.New(), EventID: e.ID, UserID: user.ID, Status: models.RegistrationStatusRegistered,
		CreatedAt: base, UpdatedAt: base,
	}
	if err := s.Registrations().Create(ctx, reg); err != nil {
		t.Fatal(err)
	}
	again := *reg
	again.ID = uuid.New()
	if err := s.Registrations().Create(ctx, &again); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	n, err := s.Registrations().CountByEvent(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 registration, got %d", n)
	}
}

func testMessageSequence(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, _ := NewProfile(t, s, uniqueEmail("chat-a"))
	c := &models.Conversation{ID: uuid.New(), CreatedAt: base, UpdatedAt: base}
	if err := s.Conversations().Create(ctx, c); err != nil {
		t.Fatal(err)
	}
	if err := s.Conversations().AddMember(ctx, &models.ConversationMember{ConversationID: c.ID, MemberID: a.ID, JoinedAt: base}); err != nil {
		t.Fatal(err)
	}

	var last int64
	var msgs []*models.Message
	for i := 0; i < 4; i++ {
		m := &models.Message{
			ID: uuid.New(), ConversationID: c.ID, SenderID: a.ID,
			Content: fmt.Sprintf("gg %d", i), Type: models.MessageTypeText, CreatedAt: base,
		}
		if err := s.Messages().Create(ctx, m); err != nil {
			t.Fatal(err)
		}
		if m.Seq <= last {
			t.Fatalf("sequence must increase: %d after %d", m.Seq, last)
		}
		last = m.Seq
		msgs = append(msgs, m)
	}

	after, err := s.Messages().List(ctx, c.ID, msgs[1].Seq, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != 2 || after[0].ID != msgs[2].ID || after[1].ID != msgs[3].ID {
		t.Fatal("cursor listing must return later messages in order")
	}

	convs, err := s.Conversations().ListForMember(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 || convs[0].ID != c.ID {
		t.Fatal("member should see the conversation")
	}
}

// A reader following the seq cursor while members send concurrently must
// see every message exactly once. Sends lock the conversation before the
// insert, as the messaging service does.
func testMessageCursorConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, _ := NewProfile(t, s, uniqueEmail("chat-race"))
	c := &models.Conversation{ID: uuid.New(), CreatedAt: base, UpdatedAt: base}
	if err := s.Conversations().Create(ctx, c); err != nil {
		t.Fatal(err)
	}
	if err := s.Conversations().AddMember(ctx, &models.ConversationMember{ConversationID: c.ID, MemberID: a.ID, JoinedAt: base}); err != nil {
		t.Fatal(err)
	}

	const senders = 8
	const perSender = 10

	var wg sync.WaitGroup
	errs := make(chan error, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				err := s.WithTx(ctx, func(r store.Repos) error {
					if err := r.Conversations().Touch(ctx, c.ID, base); err != nil {
						return err
					}
					return r.Messages().Create(ctx, &models.Message{
						ID: uuid.New(), ConversationID: c.ID, SenderID: a.ID,
						Content: fmt.Sprintf("msg %d-%d", i, j), Type: models.MessageTypeText, CreatedAt: base,
					})
				})
				if err != nil {
					errs <- err
					return
				}
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	seen := make(map[uuid.UUID]bool)
	var cursor int64
	poll := func() {
		page, err := s.Messages().List(ctx, c.ID, cursor, 0)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		for _, m := range page {
			if seen[m.ID] {
				t.Fatalf("message %s returned twice", m.ID)
			}
			seen[m.ID] = true
			cursor = m.Seq
		}
	}

	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
			poll()
		}
	}
	poll()

	close(errs)
	for err := range errs {
		t.Fatalf("send failed: %v", err)
	}
	if len(seen) != senders*perSender {
		t.Fatalf("cursor reader saw %d of %d messages", len(seen), senders*perSender)
	}
}

func testNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()
	missing := uuid.New()

	if _, err := s.Profiles().Get(ctx, missing); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("profile: expected ErrNotFound, got %v", err)
	}
	if _, err := s.Wallets().Get(ctx, missing); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("wallet: expected a NotFound kind, got %v", err)
	}
	if err := s.Projects().Update(ctx, &models.Project{ID: missing}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("project update: expected ErrNotFound, got %v", err)
	}
	if _, err := s.Conversations().GetMember(ctx, missing, missing); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("member: expected ErrNotFound, got %v", err)
	}
}
