// Package memory is an in-process store. Every unit of work is serialized
// under one mutex and runs against a copy of the state that is swapped in
// only when the unit succeeds.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/google/uuid"
)

type memberKey struct {
	conversationID uuid.UUID
	memberID       uuid.UUID
}

type state struct {
	profiles      map[uuid.UUID]models.Profile
	wallets       map[uuid.UUID]models.Wallet
	transactions  []models.Transaction
	projects      map[uuid.UUID]models.Project
	bids          map[uuid.UUID]models.Bid
	milestones    map[uuid.UUID]models.Milestone
	events        map[uuid.UUID]models.Event
	registrations map[uuid.UUID]models.EventRegistration
	conversations map[uuid.UUID]models.Conversation
	members       map[memberKey]models.ConversationMember
	messages      map[uuid.UUID]models.Message
	seq           int64
}

func newState() *state {
	return &state{
		profiles:      make(map[uuid.UUID]models.Profile),
		wallets:       make(map[uuid.UUID]models.Wallet),
		projects:      make(map[uuid.UUID]models.Project),
		bids:          make(map[uuid.UUID]models.Bid),
		milestones:    make(map[uuid.UUID]models.Milestone),
		events:        make(map[uuid.UUID]models.Event),
		registrations: make(map[uuid.UUID]models.EventRegistration),
		conversations: make(map[uuid.UUID]models.Conversation),
		members:       make(map[memberKey]models.ConversationMember),
		messages:      make(map[uuid.UUID]models.Message),
	}
}

// clone copies the containers. Stored values never share mutable memory with
// callers, so a shallow copy of each map is a full snapshot.
func (s *state) clone() *state {
	return &state{
		profiles:      maps.Clone(s.profiles),
		wallets:       maps.Clone(s.wallets),
		transactions:  slices.Clone(s.transactions),
		projects:      maps.Clone(s.projects),
		bids:          maps.Clone(s.bids),
		milestones:    maps.Clone(s.milestones),
		events:        maps.Clone(s.events),
		registrations: maps.Clone(s.registrations),
		conversations: maps.Clone(s.conversations),
		members:       maps.Clone(s.members),
		messages:      maps.Clone(s.messages),
		seq:           s.seq,
	}
}

// Store is the in-memory implementation of store.Store
type Store struct {
	mu sync.Mutex
	st *state
}

// New returns an empty store
func New() *Store {
	return &Store{st: newState()}
}

// WithTx runs fn against a private copy of the state and publishes the copy
// only when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(r store.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	draft := s.st.clone()
	if err := fn(&repos{db: s, tx: draft}); err != nil {
		return err
	}
	s.st = draft
	return nil
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op
func (s *Store) Close() {}

func (s *Store) Profiles() store.ProfileRepository           { return (&repos{db: s}).Profiles() }
func (s *Store) Wallets() store.WalletRepository             { return (&repos{db: s}).Wallets() }
func (s *Store) Projects() store.ProjectRepository           { return (&repos{db: s}).Projects() }
func (s *Store) Bids() store.BidRepository                   { return (&repos{db: s}).Bids() }
func (s *Store) Milestones() store.MilestoneRepository       { return (&repos{db: s}).Milestones() }
func (s *Store) Events() store.EventRepository               { return (&repos{db: s}).Events() }
func (s *Store) Registrations() store.RegistrationRepository { return (&repos{db: s}).Registrations() }
func (s *Store) Conversations() store.ConversationRepository { return (&repos{db: s}).Conversations() }
func (s *Store) Messages() store.MessageRepository           { return (&repos{db: s}).Messages() }

// repos binds repositories either to the committed state (tx == nil, each
// call takes the lock) or to a draft owned by a running unit of work.
type repos struct {
	db *Store
	tx *state
}

func (r *repos) run(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.tx != nil {
		return fn(r.tx)
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return fn(r.db.st)
}

func (r *repos) Profiles() store.ProfileRepository           { return &profileRepo{r} }
func (r *repos) Wallets() store.WalletRepository             { return &walletRepo{r} }
func (r *repos) Projects() store.ProjectRepository           { return &projectRepo{r} }
func (r *repos) Bids() store.BidRepository                   { return &bidRepo{r} }
func (r *repos) Milestones() store.MilestoneRepository       { return &milestoneRepo{r} }
func (r *repos) Events() store.EventRepository               { return &eventRepo{r} }
func (r *repos) Registrations() store.RegistrationRepository { return &registrationRepo{r} }
func (r *repos) Conversations() store.ConversationRepository { return &conversationRepo{r} }
func (r *repos) Messages() store.MessageRepository           { return &messageRepo{r} }

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// page applies limit/offset to an already ordered slice
func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	if offset > 0 {
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

var (
	_ store.Store = (*Store)(nil)
	_ store.Repos = (*repos)(nil)
)
