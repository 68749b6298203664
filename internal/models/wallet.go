package models

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType classifies a wallet movement
type TransactionType string

const (
	TransactionTypeDeposit  TransactionType = "deposit"
	TransactionTypeEarning  TransactionType = "earning"
	TransactionTypeSpending TransactionType = "spending"
	TransactionTypeTransfer TransactionType = "transfer"
	TransactionTypeReward   TransactionType = "reward"
)

// Valid reports whether t is a known transaction type
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeEarning, TransactionTypeSpending,
		TransactionTypeTransfer, TransactionTypeReward:
		return true
	}
	return false
}

// IsDebit reports whether the type takes coins out of the source wallet
func (t TransactionType) IsDebit() bool {
	return t == TransactionTypeSpending || t == TransactionTypeTransfer
}

// TransactionStatus represents the status of a transaction
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Wallet holds a profile's GigCoins.
// Invariant: Balance == TotalEarned - TotalSpent.
type Wallet struct {
	ID          uuid.UUID `json:"id" db:"id"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	Balance     int64     `json:"balance" db:"balance"`
	TotalEarned int64     `json:"total_earned" db:"total_earned"`
	TotalSpent  int64     `json:"total_spent" db:"total_spent"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Consistent checks the wallet balance invariant
func (w *Wallet) Consistent() bool {
	return w.Balance >= 0 && w.TotalEarned >= 0 && w.TotalSpent >= 0 &&
		w.Balance == w.TotalEarned-w.TotalSpent
}

// Transaction is a wallet movement. Amount is signed from the point of view
// of WalletID: debits are negative.
type Transaction struct {
	ID                uuid.UUID         `json:"id" db:"id"`
	WalletID          uuid.UUID         `json:"wallet_id" db:"wallet_id"`
	Amount            int64             `json:"amount" db:"amount"`
	Type              TransactionType   `json:"type" db:"type"`
	Status            TransactionStatus `json:"status" db:"status"`
	RecipientWalletID *uuid.UUID        `json:"recipient_wallet_id,omitempty" db:"recipient_wallet_id"`
	Description       *string           `json:"description,omitempty" db:"description"`
	ReferenceID       *string           `json:"reference_id,omitempty" db:"reference_id"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
}

// LeaderboardEntry is one ranked profile
type LeaderboardEntry struct {
	Rank        int       `json:"rank"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName *string   `json:"display_name,omitempty"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	Level       int       `json:"level"`
	TotalEarned int64     `json:"total_earned"`
}
