package memory

import (
	"context"
	"sort"

	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/google/uuid"
)

type walletRepo struct{ *repos }

func (r *walletRepo) Create(ctx context.Context, w *models.Wallet) error {
	return r.run(ctx, func(st *state) error {
		if _, ok := st.wallets[w.ID]; ok {
			return store.ErrDuplicate
		}
		for _, other := range st.wallets {
			if other.UserID == w.UserID {
				return store.ErrDuplicate
			}
		}
		if _, ok := st.profiles[w.UserID]; !ok {
			return store.ErrNotFound
		}
		st.wallets[w.ID] = *w
		return nil
	})
}

func (r *walletRepo) Get(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var out *models.Wallet
	err := r.run(ctx, func(st *state) error {
		w, ok := st.wallets[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &w
		return nil
	})
	return out, err
}

func (r *walletRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return r.Get(ctx, id)
}

func (r *walletRepo) GetByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var out *models.Wallet
	err := r.run(ctx, func(st *state) error {
		for _, w := range st.wallets {
			if w.UserID == userID {
				out = &w
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (r *walletRepo) Update(ctx context.Context, w *models.Wallet) error {
	return r.run(ctx, func(st *state) error {
		if _, ok := st.wallets[w.ID]; !ok {
			return store.ErrNotFound
		}
		st.wallets[w.ID] = *w
		return nil
	})
}

func copyTransaction(t models.Transaction) *models.Transaction {
	t.RecipientWalletID = clonePtr(t.RecipientWalletID)
	t.Description = clonePtr(t.Description)
	t.ReferenceID = clonePtr(t.ReferenceID)
	return &t
}

func (r *walletRepo) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	return r.run(ctx, func(st *state) error {
		if _, ok := st.wallets[tx.WalletID]; !ok {
			return store.ErrNotFound
		}
		if tx.RecipientWalletID != nil {
			if _, ok := st.wallets[*tx.RecipientWalletID]; !ok {
				return store.ErrNotFound
			}
		}
		st.transactions = append(st.transactions, *copyTransaction(*tx))
		return nil
	})
}

func (r *walletRepo) ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*models.Transaction, int, error) {
	var out []*models.Transaction
	var total int
	err := r.run(ctx, func(st *state) error {
		var all []*models.Transaction
		// newest insert first so equal timestamps keep reverse insertion order
		for i := len(st.transactions) - 1; i >= 0; i-- {
			t := st.transactions[i]
			if t.WalletID == walletID || (t.RecipientWalletID != nil && *t.RecipientWalletID == walletID) {
				all = append(all, copyTransaction(t))
			}
		}
		sort.SliceStable(all, func(i, j int) bool {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		})
		total = len(all)
		out = page(all, limit, offset)
		return nil
	})
	return out, total, err
}

func (r *walletRepo) TopEarners(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error) {
	var out []*models.LeaderboardEntry
	err := r.run(ctx, func(st *state) error {
		for _, w := range st.wallets {
			p, ok := st.profiles[w.UserID]
			if !ok {
				continue
			}
			out = append(out, &models.LeaderboardEntry{
				UserID:      p.ID,
				DisplayName: clonePtr(p.DisplayName),
				AvatarURL:   clonePtr(p.AvatarURL),
				Level:       p.Level,
				TotalEarned: w.TotalEarned,
			})
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].TotalEarned != out[j].TotalEarned {
				return out[i].TotalEarned > out[j].TotalEarned
			}
			if out[i].Level != out[j].Level {
				return out[i].Level > out[j].Level
			}
			return out[i].UserID.String() < out[j].UserID.String()
		})
		out = page(out, limit, 0)
		for i, e := range out {
			e.Rank = i + 1
		}
		return nil
	})
	return out, err
}
