package app

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/campusrewards/ledger-service/internal/domain"
	"github.com/campusrewards/ledger-service/internal/store"
)

// RedemptionInput is a member's request to spend points.
type RedemptionInput struct {
	AccountID string `json:"-"`
	Amount    int64  `json:"amount"`
	Remark    string `json:"remark"`
}

// ProcessRedemptionInput moves a redemption to its terminal state.
type ProcessRedemptionInput struct {
	TransactionID  int64
	ProcessorID    string
	IdempotencyKey string
}

// RequestRedemption records a pending redemption. The balance drops by amount
// immediately; processing later only marks it fulfilled.
func (s *Service) RequestRedemption(ctx context.Context, in RedemptionInput) (result *domain.Transaction, err error) {
	ctx, finish := s.begin(ctx, "redemption_request", attribute.String("account.id", in.AccountID))
	defer func() { finish(err) }()

	in.AccountID = strings.TrimSpace(in.AccountID)
	if in.AccountID == "" {
		return nil, domain.Invalid("account id is required")
	}
	if in.Amount <= 0 {
		return nil, domain.Invalid("amount must be a positive integer")
	}
	if err := s.enforceRateLimit(ctx, ScopeRedemption, in.AccountID); err != nil {
		return nil, err
	}

	var balance int64
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		accounts, err := tx.LockAccounts(ctx, in.AccountID)
		if err != nil {
			return err
		}
		account, ok := accounts[in.AccountID]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, in.AccountID)
		}
		if !account.Verified {
			return fmt.Errorf("account %s: %w", account.ID, domain.ErrUnverifiedAccount)
		}

		entry := &domain.Transaction{
			AccountID: account.ID,
			Type:      domain.TypeRedemption,
			Amount:    -in.Amount,
			Remark:    in.Remark,
			CreatedBy: account.ID,
			CreatedAt: s.now().UTC(),
		}
		if err := store.Record(ctx, tx, account, entry); err != nil {
			return err
		}
		balance = account.Points
		result = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("redemption requested", "transaction_id", result.ID, "account_id", result.AccountID, "amount", in.Amount)
	s.committed(ctx, domain.RoutingTransactionRecorded, []domain.Transaction{*result}, map[string]int64{result.AccountID: balance})
	return result, nil
}

// ProcessRedemption marks a redemption as fulfilled at most once. Repeating a
// successful call with the same non-empty idempotency key returns the processed
// transaction instead of ErrAlreadyProcessed.
func (s *Service) ProcessRedemption(ctx context.Context, in ProcessRedemptionInput) (result *domain.Transaction, err error) {
	ctx, finish := s.begin(ctx, "redemption_process", attribute.Int64("transaction.id", in.TransactionID))
	defer func() { finish(err) }()

	in.ProcessorID = strings.TrimSpace(in.ProcessorID)
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if in.ProcessorID == "" {
		return nil, domain.Invalid("processor id is required")
	}
	if len(in.IdempotencyKey) > 128 {
		return nil, domain.Invalid("idempotency key is too long")
	}

	replayed := false
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		t, err := tx.LockTransaction(ctx, in.TransactionID)
		if err != nil {
			return err
		}
		if t.Type != domain.TypeRedemption {
			return fmt.Errorf("transaction %d is %s: %w", t.ID, t.Type, domain.ErrWrongType)
		}
		if t.Processed() {
			if in.IdempotencyKey != "" {
				prior, err := tx.GetRedemptionProcessing(ctx, t.ID)
				if err != nil {
					return err
				}
				if prior != nil && prior.IdempotencyKey == in.IdempotencyKey {
					replayed = true
					result = t
					return nil
				}
			}
			return fmt.Errorf("transaction %d: %w", t.ID, domain.ErrAlreadyProcessed)
		}

		redeemed := -t.Amount
		processing := domain.RedemptionProcessing{
			TransactionID:  t.ID,
			ProcessorID:    in.ProcessorID,
			IdempotencyKey: in.IdempotencyKey,
			ProcessedAt:    s.now().UTC(),
		}
		if err := tx.MarkRedemptionProcessed(ctx, processing, redeemed); err != nil {
			return err
		}
		t.Redeemed = &redeemed
		t.RelatedID = domain.StringRef(in.ProcessorID)
		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		s.logger.Info("redemption processing replayed", "transaction_id", result.ID, "processor_id", in.ProcessorID)
		return result, nil
	}

	s.logger.Info("redemption processed", "transaction_id", result.ID, "processor_id", in.ProcessorID, "redeemed", *result.Redeemed)
	s.committed(ctx, domain.RoutingRedemptionProcessed, []domain.Transaction{*result}, nil)
	return result, nil
}
