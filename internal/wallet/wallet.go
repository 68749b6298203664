package wallet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/aimerfeng/Gigsy/internal/broker"
	"github.com/aimerfeng/Gigsy/internal/logging"
	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/monitoring"
	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Wallet errors
var (
	ErrWalletNotFound    = fmt.Errorf("wallet %w", models.ErrNotFound)
	ErrInsufficientFunds = fmt.Errorf("wallet balance too low: %w", models.ErrInsufficientFunds)
	ErrNotWalletOwner    = fmt.Errorf("%w: caller does not own this wallet", models.ErrForbidden)
	ErrCreditNotAllowed  = fmt.Errorf("%w: only admins may credit wallets", models.ErrForbidden)
	ErrPackageNotFound   = fmt.Errorf("coin package %w", models.ErrNotFound)
	ErrNoIdentity        = fmt.Errorf("%w: no caller identity", models.ErrUnauthorized)
)

// Service applies wallet transactions
type Service struct {
	store store.Store
	bus   broker.Bus
	now   func() time.Time
}

// NewService creates a new wallet service
func NewService(st store.Store, bus broker.Bus) *Service {
	return &Service{
		store: st,
		bus:   bus,
		now:   time.Now,
	}
}

// ApplyRequest describes one transaction against WalletID. Amount is always
// positive; the type decides the direction.
type ApplyRequest struct {
	WalletID          uuid.UUID
	Amount            int64
	Type              models.TransactionType
	RecipientWalletID *uuid.UUID
	Description       *string
	ReferenceID       *string
}

func (r *ApplyRequest) validate() error {
	v := &models.ValidationError{}
	if r.Amount <= 0 {
		v.Add("amount", "must be greater than zero")
	}
	if !r.Type.Valid() {
		v.Add("type", "unknown transaction type")
	}
	switch {
	case r.Type == models.TransactionTypeTransfer && r.RecipientWalletID == nil:
		v.Add("recipient", "a transfer needs a recipient")
	case r.Type == models.TransactionTypeTransfer && *r.RecipientWalletID == r.WalletID:
		v.Add("recipient", "cannot transfer to the same wallet")
	case r.Type != models.TransactionTypeTransfer && r.RecipientWalletID != nil:
		v.Add("recipient", "only transfers take a recipient")
	}
	return v.Err()
}

// ApplyTransaction applies req as one atomic unit. A debit that exceeds the
// balance is recorded as a failed transaction and returns ErrInsufficientFunds.
func (s *Service) ApplyTransaction(ctx context.Context, req *ApplyRequest) (*models.Transaction, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	var tx *models.Transaction
	err := s.store.WithTx(ctx, func(r store.Repos) error {
		var err error
		tx, err = s.ApplyWith(ctx, r, req)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			s.recordFailed(ctx, req)
			return nil, err
		}
		return nil, fmt.Errorf("failed to apply transaction: %w", err)
	}

	s.AfterCommit(ctx, tx)
	return tx, nil
}

// ApplyWith applies req through r so callers can compose it with their own
// writes. Wallet rows are locked in id order.
func (s *Service) ApplyWith(ctx context.Context, r store.Repos, req *ApplyRequest) (*models.Transaction, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	ids := []uuid.UUID{req.WalletID}
	if req.RecipientWalletID != nil {
		ids = append(ids, *req.RecipientWalletID)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	})

	locked := make(map[uuid.UUID]*models.Wallet, len(ids))
	for _, id := range ids {
		w, err := r.Wallets().GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrWalletNotFound
			}
			return nil, err
		}
		locked[id] = w
	}

	now := s.now().UTC()
	source := locked[req.WalletID]
	signed := req.Amount

	if req.Type.IsDebit() {
		if req.Amount > source.Balance {
			return nil, ErrInsufficientFunds
		}
		source.TotalSpent += req.Amount
		signed = -req.Amount
	} else {
		if source.TotalEarned > math.MaxInt64-req.Amount {
			return nil, models.NewValidationError("amount", "too large")
		}
		source.TotalEarned += req.Amount
	}
	source.Balance = source.TotalEarned - source.TotalSpent
	source.UpdatedAt = now
	if err := r.Wallets().Update(ctx, source); err != nil {
		return nil, err
	}

	if req.RecipientWalletID != nil {
		recipient := locked[*req.RecipientWalletID]
		if recipient.TotalEarned > math.MaxInt64-req.Amount {
			return nil, models.NewValidationError("amount", "too large")
		}
		recipient.TotalEarned += req.Amount
		recipient.Balance = recipient.TotalEarned - recipient.TotalSpent
		recipient.UpdatedAt = now
		if err := r.Wallets().Update(ctx, recipient); err != nil {
			return nil, err
		}
	}

	tx := &models.Transaction{
		ID:                uuid.New(),
		WalletID:          req.WalletID,
		Amount:            signed,
		Type:              req.Type,
		Status:            models.TransactionStatusCompleted,
		RecipientWalletID: req.RecipientWalletID,
		Description:       req.Description,
		ReferenceID:       req.ReferenceID,
		CreatedAt:         now,
	}
	if err := r.Wallets().InsertTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// AfterCommit records and publishes a committed transaction
func (s *Service) AfterCommit(ctx context.Context, tx *models.Transaction) {
	amount := tx.Amount
	if amount < 0 {
		amount = -amount
	}
	monitoring.RecordTransaction(string(tx.Type), string(tx.Status), amount)
	logging.LogTransaction(tx.WalletID.String(), string(tx.Type), string(tx.Status), tx.Amount)
	broker.Notify(ctx, s.bus, broker.SubjectTransactionApplied, tx)
}

// recordFailed keeps an audit row for a rejected debit. Balances are untouched.
func (s *Service) recordFailed(ctx context.Context, req *ApplyRequest) {
	tx := &models.Transaction{
		ID:                uuid.New(),
		WalletID:          req.WalletID,
		Amount:            -req.Amount,
		Type:              req.Type,
		Status:            models.TransactionStatusFailed,
		RecipientWalletID: req.RecipientWalletID,
		Description:       req.Description,
		ReferenceID:       req.ReferenceID,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.store.Wallets().InsertTransaction(ctx, tx); err != nil {
		log.Error().Err(err).Str("wallet_id", req.WalletID.String()).Msg("Failed to record failed transaction")
		return
	}
	monitoring.RecordTransaction(string(tx.Type), string(tx.Status), req.Amount)
	logging.LogTransaction(tx.WalletID.String(), string(tx.Type), string(tx.Status), tx.Amount)
}

// GetWallet returns a wallet by id
func (s *Service) GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	w, err := s.store.Wallets().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return w, nil
}

// GetWalletByUser returns the wallet of userID. Only the owner and admins
// may read it.
func (s *Service) GetWalletByUser(ctx context.Context, viewer *models.Profile, userID uuid.UUID) (*models.Wallet, error) {
	if err := canRead(viewer, userID); err != nil {
		return nil, err
	}
	return s.walletOf(ctx, userID)
}

func (s *Service) walletOf(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	w, err := s.store.Wallets().GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return w, nil
}

func canRead(viewer *models.Profile, userID uuid.UUID) error {
	if viewer == nil {
		return ErrNoIdentity
	}
	if viewer.ID != userID && viewer.Role != models.RoleAdmin {
		return ErrNotWalletOwner
	}
	return nil
}

// TransactionListResponse is a page of transactions
type TransactionListResponse struct {
	Transactions []*models.Transaction `json:"transactions"`
	Total        int                   `json:"total"`
	Page         int                   `json:"page"`
	PageSize     int                   `json:"page_size"`
	TotalPages   int                   `json:"total_pages"`
}

// ListTransactions returns the wallet history of userID, newest first.
// Incoming transfers are shown with a positive amount.
func (s *Service) ListTransactions(ctx context.Context, viewer *models.Profile, userID uuid.UUID, page, pageSize int) (*TransactionListResponse, error) {
	if err := canRead(viewer, userID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	w, err := s.walletOf(ctx, userID)
	if err != nil {
		return nil, err
	}

	txs, total, err := s.store.Wallets().ListTransactions(ctx, w.ID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	for _, tx := range txs {
		if tx.WalletID != w.ID {
			tx.Amount = -tx.Amount
		}
	}

	return &TransactionListResponse{
		Transactions: txs,
		Total:        total,
		Page:         page,
		PageSize:     pageSize,
		TotalPages:   (total + pageSize - 1) / pageSize,
	}, nil
}

// CreateTransactionRequest is the HTTP form of a transaction on the caller's wallet
type CreateTransactionRequest struct {
	Amount          int64                  `json:"amount" binding:"required,gt=0"`
	Type            models.TransactionType `json:"type" binding:"required"`
	RecipientUserID *uuid.UUID             `json:"recipient_user_id"`
	Description     *string                `json:"description" binding:"omitempty,max=200"`
	ReferenceID     *string                `json:"reference_id" binding:"omitempty,max=100"`
}

// CreateTransaction applies a transaction to the wallet of userID on behalf
// of caller. Owners may spend and transfer; credits are admin-only.
func (s *Service) CreateTransaction(ctx context.Context, caller *models.Profile, userID uuid.UUID, req *CreateTransactionRequest) (*models.Transaction, error) {
	if caller == nil {
		return nil, ErrNoIdentity
	}
	if req.Type.IsDebit() {
		if caller.ID != userID {
			return nil, ErrNotWalletOwner
		}
	} else if caller.Role != models.RoleAdmin {
		return nil, ErrCreditNotAllowed
	}

	w, err := s.walletOf(ctx, userID)
	if err != nil {
		return nil, err
	}

	apply := &ApplyRequest{
		WalletID:    w.ID,
		Amount:      req.Amount,
		Type:        req.Type,
		Description: req.Description,
		ReferenceID: req.ReferenceID,
	}
	if req.RecipientUserID != nil {
		recipient, err := s.walletOf(ctx, *req.RecipientUserID)
		if err != nil {
			return nil, err
		}
		apply.RecipientWalletID = &recipient.ID
	}

	return s.ApplyTransaction(ctx, apply)
}

// Packages returns the coin package catalog
func (s *Service) Packages() []CoinPackage {
	return CoinPackages
}

// CreditPackageRequest confirms an externally paid package
type CreditPackageRequest struct {
	PackageID        string `json:"package_id" binding:"required"`
	PaymentReference string `json:"payment_reference" binding:"required,max=100"`
}

// CreditPackage deposits a package's coins into the wallet of userID
func (s *Service) CreditPackage(ctx context.Context, admin *models.Profile, userID uuid.UUID, req *CreditPackageRequest) (*models.Transaction, error) {
	if admin == nil {
		return nil, ErrNoIdentity
	}
	if admin.Role != models.RoleAdmin {
		return nil, ErrCreditNotAllowed
	}
	pkg, ok := FindPackage(req.PackageID)
	if !ok {
		return nil, ErrPackageNotFound
	}

	w, err := s.walletOf(ctx, userID)
	if err != nil {
		return nil, err
	}

	desc := fmt.Sprintf("%s (%s USD)", pkg.Name, pkg.PriceUSD.StringFixed(2))
	ref := req.PaymentReference
	tx, err := s.ApplyTransaction(ctx, &ApplyRequest{
		WalletID:    w.ID,
		Amount:      pkg.Total(),
		Type:        models.TransactionTypeDeposit,
		Description: &desc,
		ReferenceID: &ref,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("admin_id", admin.ID.String()).
		Str("user_id", userID.String()).
		Str("package", pkg.ID).
		Str("price_usd", pkg.PriceUSD.String()).
		Msg("Coin package credited")
	return tx, nil
}

// Leaderboard ranks profiles by total earned, then level
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error) {
	if limit < 1 || limit > 100 {
		limit = 10
	}
	entries, err := s.store.Wallets().TopEarners(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	if entries == nil {
		entries = []*models.LeaderboardEntry{}
	}
	return entries, nil
}
