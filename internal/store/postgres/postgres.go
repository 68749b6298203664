// Package postgres implements store.Store on PostgreSQL with pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aimerfeng/Gigsy/internal/database"
	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL implementation of store.Store
type Store struct {
	db *database.DB
	repos
}

// New wraps an open connection pool
func New(db *database.DB) *Store {
	return &Store{db: db, repos: repos{q: db.Pool}}
}

// Pool exposes the underlying pool for health and metrics
func (s *Store) Pool() *pgxpool.Pool {
	return s.db.Pool
}

// WithTx runs fn inside a database transaction. Row locks taken through the
// ForUpdate getters are held until the transaction ends.
func (s *Store) WithTx(ctx context.Context, fn func(r store.Repos) error) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&repos{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapErr(err))
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Health(ctx)
}

func (s *Store) Close() {
	s.db.Close()
}

type repos struct {
	q querier
}

func (r *repos) Profiles() store.ProfileRepository           { return &profileRepo{r.q} }
func (r *repos) Wallets() store.WalletRepository             { return &walletRepo{r.q} }
func (r *repos) Projects() store.ProjectRepository           { return &projectRepo{r.q} }
func (r *repos) Bids() store.BidRepository                   { return &bidRepo{r.q} }
func (r *repos) Milestones() store.MilestoneRepository       { return &milestoneRepo{r.q} }
func (r *repos) Events() store.EventRepository               { return &eventRepo{r.q} }
func (r *repos) Registrations() store.RegistrationRepository { return &registrationRepo{r.q} }
func (r *repos) Conversations() store.ConversationRepository { return &conversationRepo{r.q} }
func (r *repos) Messages() store.MessageRepository           { return &messageRepo{r.q} }

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// mapErr translates driver errors into store errors
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w (%s)", store.ErrDuplicate, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w (%s)", store.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

// expectOne reports ErrNotFound for updates that matched nothing
func expectOne(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// where accumulates filter conditions with numbered placeholders
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func pageClause(limit, offset int) string {
	var b strings.Builder
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}
	return b.String()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var (
	_ store.Store = (*Store)(nil)
	_ store.Repos = (*repos)(nil)
)
