package postgres

import (
	"context"
	"fmt"

	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/google/uuid"
)

const walletColumns = `id, user_id, balance, total_earned, total_spent, created_at, updated_at`

const transactionColumns = `id, wallet_id, amount, type, status, recipient_wallet_id,
	description, reference_id, created_at`

type walletRepo struct{ q querier }

func scanWallet(row rowScanner) (*models.Wallet, error) {
	var w models.Wallet
	if err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.TotalEarned, &w.TotalSpent, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &w, nil
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.WalletID, &t.Amount, &t.Type, &t.Status, &t.RecipientWalletID,
		&t.Description, &t.ReferenceID, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (r *walletRepo) Create(ctx context.Context, w *models.Wallet) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO wallets (`+walletColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, w.ID, w.UserID, w.Balance, w.TotalEarned, w.TotalSpent, w.CreatedAt, w.UpdatedAt)
	return mapErr(err)
}

func (r *walletRepo) Get(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return scanWallet(r.q.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
}

func (r *walletRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return scanWallet(r.q.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id))
}

func (r *walletRepo) GetByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return scanWallet(r.q.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
}

func (r *walletRepo) Update(ctx context.Context, w *models.Wallet) error {
	return expectOne(r.q.Exec(ctx, `
		UPDATE wallets SET balance = $2, total_earned = $3, total_spent = $4, updated_at = $5
		WHERE id = $1
	`, w.ID, w.Balance, w.TotalEarned, w.TotalSpent, w.UpdatedAt))
}

func (r *walletRepo) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.WalletID, t.Amount, t.Type, t.Status, t.RecipientWalletID,
		t.Description, t.ReferenceID, t.CreatedAt)
	return mapErr(err)
}

func (r *walletRepo) ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*models.Transaction, int, error) {
	var total int
	err := r.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM transactions WHERE wallet_id = $1 OR recipient_wallet_id = $1
	`, walletID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	rows, err := r.q.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE wallet_id = $1 OR recipient_wallet_id = $1
		ORDER BY created_at DESC, id`+pageClause(limit, offset), walletID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	out := []*models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (r *walletRepo) TopEarners(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT p.id, p.display_name, p.avatar_url, p.level, w.total_earned
		FROM wallets w
		JOIN profiles p ON p.id = w.user_id
		ORDER BY w.total_earned DESC, p.level DESC, p.id`+pageClause(limit, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	out := []*models.LeaderboardEntry{}
	for rows.Next() {
		e := &models.LeaderboardEntry{Rank: len(out) + 1}
		if err := rows.Scan(&e.UserID, &e.DisplayName, &e.AvatarURL, &e.Level, &e.TotalEarned); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
