package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/campusrewards/ledger-service/internal/domain"
	"github.com/campusrewards/ledger-service/internal/store"
)

// suspiciousDelta is the balance change caused by flipping a purchase or
// adjustment from old to next.
func suspiciousDelta(amount int64, old, next bool) int64 {
	switch {
	case old == next:
		return 0
	case next:
		return -amount
	default:
		return amount
	}
}

// SetSuspicious freezes or restores a purchase or adjustment. Freezing removes
// the entry's amount from the owner's balance and clearing puts it back; the
// result must not leave the balance negative.
func (s *Service) SetSuspicious(ctx context.Context, transactionID int64, suspicious bool) (result *domain.Transaction, err error) {
	ctx, finish := s.begin(ctx, "set_suspicious",
		attribute.Int64("transaction.id", transactionID),
		attribute.Bool("suspicious", suspicious),
	)
	defer func() { finish(err) }()

	changed := false
	var balance int64
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		t, err := tx.LockTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if !t.Type.CarriesSuspiciousFlag() {
			return fmt.Errorf("transaction %d is %s: %w", t.ID, t.Type, domain.ErrWrongType)
		}
		result = t
		if t.Suspicious == suspicious {
			return nil
		}

		accounts, err := tx.LockAccounts(ctx, t.AccountID)
		if err != nil {
			return err
		}
		account, ok := accounts[t.AccountID]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, t.AccountID)
		}
		if err := store.ApplyDelta(ctx, tx, account, suspiciousDelta(t.Amount, t.Suspicious, suspicious)); err != nil {
			return err
		}
		if err := tx.UpdateTransactionSuspicious(ctx, t.ID, suspicious); err != nil {
			return err
		}
		t.Suspicious = suspicious
		balance = account.Points
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return result, nil
	}

	s.logger.Info("suspicious flag changed",
		"transaction_id", result.ID,
		"account_id", result.AccountID,
		"suspicious", suspicious,
		"balance", balance,
	)
	s.committed(ctx, domain.RoutingSuspiciousChanged, []domain.Transaction{*result}, map[string]int64{result.AccountID: balance})
	return result, nil
}
