/**
 * @description
 * This file defines the `Store` and `Tx` interfaces, which specify the contract for all
 * data access operations required by the ledger-service. Every balance-changing
 * operation runs inside one `Tx` obtained from `Store.WithinTx`; nothing outside this
 * package writes account points directly.
 *
 * Locking order, shared by every implementation and every caller:
 * transaction row -> event row -> account rows in ascending id order.
 */

package store

import (
	"context"
	"fmt"

	"github.com/campusrewards/ledger-service/internal/domain"
)

// Store is the single shared mutable resource of the service.
type Store interface {
	// WithinTx runs fn as one atomic unit of work. If fn returns an error nothing
	// it wrote is kept.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
	GetTransaction(ctx context.Context, transactionID int64) (*domain.Transaction, error)
	ListAccountTransactions(ctx context.Context, accountID string, limit int, offset int) ([]domain.Transaction, error)
	GetPromotion(ctx context.Context, promotionID int64) (*domain.Promotion, error)
	GetEvent(ctx context.Context, eventID int64) (*domain.Event, error)
	FindBalanceDrift(ctx context.Context) ([]BalanceDrift, error)
}

// Tx is a unit of work. Methods named Lock* take row locks that are held until
// the unit of work ends.
type Tx interface {
	// LockAccounts locks the accounts that exist among ids, in ascending id order,
	// and returns them keyed by id. Missing ids are simply absent from the map.
	LockAccounts(ctx context.Context, ids ...string) (map[string]*domain.Account, error)
	UpdateAccountPoints(ctx context.Context, accountID string, points int64) error

	LockTransaction(ctx context.Context, transactionID int64) (*domain.Transaction, error)
	InsertTransaction(ctx context.Context, t *domain.Transaction) error
	UpdateTransactionSuspicious(ctx context.Context, transactionID int64, suspicious bool) error
	MarkRedemptionProcessed(ctx context.Context, processing domain.RedemptionProcessing, redeemed int64) error
	GetRedemptionProcessing(ctx context.Context, transactionID int64) (*domain.RedemptionProcessing, error)

	GetPromotions(ctx context.Context, ids []int64) (map[int64]*domain.Promotion, error)
	HasPromotionUsage(ctx context.Context, accountID string, promotionID int64) (bool, error)
	InsertPromotionUsage(ctx context.Context, usage domain.PromotionUsage) error

	LockEvent(ctx context.Context, eventID int64) (*domain.Event, error)
	UpdateEventAwarded(ctx context.Context, eventID int64, pointsAwarded int64) error
}

// BalanceDrift reports an account whose cached balance disagrees with its entries.
type BalanceDrift struct {
	AccountID string `json:"account_id"`
	Points    int64  `json:"points"`
	Expected  int64  `json:"expected"`
}

// Record writes entry and applies its balance effect to account in the same unit
// of work. account must have been locked through tx. The non-negative check runs
// before anything is written.
func Record(ctx context.Context, tx Tx, account *domain.Account, entry *domain.Transaction) error {
	if account == nil || entry.AccountID != account.ID {
		return fmt.Errorf("record: entry account %q does not match locked account", entry.AccountID)
	}
	next, err := domain.AddPoints(account.Points, entry.BalanceEffect())
	if err != nil {
		return fmt.Errorf("account %s: %w", account.ID, err)
	}
	if next < 0 {
		return fmt.Errorf("%w: account %s has %d, entry needs %d", domain.ErrInsufficientFunds, account.ID, account.Points, -entry.BalanceEffect())
	}
	if err := tx.InsertTransaction(ctx, entry); err != nil {
		return fmt.Errorf("insert %s entry: %w", entry.Type, err)
	}
	if next == account.Points {
		return nil
	}
	if err := tx.UpdateAccountPoints(ctx, account.ID, next); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	account.Points = next
	return nil
}

// ApplyDelta changes a locked account's balance without writing an entry. It is
// used only when an existing entry's frozen state changes.
func ApplyDelta(ctx context.Context, tx Tx, account *domain.Account, delta int64) error {
	next, err := domain.AddPoints(account.Points, delta)
	if err != nil {
		return fmt.Errorf("account %s: %w", account.ID, err)
	}
	if next < 0 {
		return fmt.Errorf("%w: account %s has %d, change needs %d", domain.ErrInsufficientFunds, account.ID, account.Points, -delta)
	}
	if delta == 0 {
		return nil
	}
	if err := tx.UpdateAccountPoints(ctx, account.ID, next); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	account.Points = next
	return nil
}
