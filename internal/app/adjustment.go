package app

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/campusrewards/ledger-service/internal/domain"
	"github.com/campusrewards/ledger-service/internal/store"
)

// AdjustmentInput is a privileged correction against an earlier entry.
type AdjustmentInput struct {
	AccountID            string  `json:"account_id"`
	Amount               int64   `json:"amount"`
	RelatedTransactionID int64   `json:"related_id"`
	PromotionIDs         []int64 `json:"promotion_ids"`
	Remark               string  `json:"remark"`
	CreatedBy            string  `json:"-"`
}

// CreateAdjustment records a correction. Promotion ids are validated and kept for
// reference only; they never add points.
func (s *Service) CreateAdjustment(ctx context.Context, in AdjustmentInput) (result *domain.Transaction, err error) {
	ctx, finish := s.begin(ctx, "adjustment",
		attribute.String("account.id", in.AccountID),
		attribute.Int64("related.id", in.RelatedTransactionID),
	)
	defer func() { finish(err) }()

	in.AccountID = strings.TrimSpace(in.AccountID)
	if in.AccountID == "" {
		return nil, domain.Invalid("account_id is required")
	}
	if in.Amount == 0 {
		return nil, domain.Invalid("amount must not be zero")
	}
	if in.RelatedTransactionID <= 0 {
		return nil, domain.Invalid("related_id is required")
	}

	var balance int64
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		related, err := tx.LockTransaction(ctx, in.RelatedTransactionID)
		if err != nil {
			return err
		}
		if related.AccountID != in.AccountID {
			return domain.Invalid("transaction %d does not belong to account %s", related.ID, in.AccountID)
		}

		ids := dedupeIDs(in.PromotionIDs)
		promotions, err := tx.GetPromotions(ctx, ids)
		if err != nil {
			return fmt.Errorf("load promotions: %w", err)
		}
		for _, id := range ids {
			if _, ok := promotions[id]; !ok {
				return fmt.Errorf("%w: %d", domain.ErrPromotionNotFound, id)
			}
		}

		accounts, err := tx.LockAccounts(ctx, in.AccountID)
		if err != nil {
			return err
		}
		account, ok := accounts[in.AccountID]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, in.AccountID)
		}

		entry := &domain.Transaction{
			AccountID:           account.ID,
			Type:                domain.TypeAdjustment,
			Amount:              in.Amount,
			RelatedID:           domain.StringID(related.ID),
			AppliedPromotionIDs: ids,
			Remark:              in.Remark,
			CreatedBy:           in.CreatedBy,
			CreatedAt:           s.now().UTC(),
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

	s.logger.Info("adjustment recorded",
		"transaction_id", result.ID,
		"account_id", result.AccountID,
		"amount", result.Amount,
		"related_id", in.RelatedTransactionID,
	)
	s.committed(ctx, domain.RoutingTransactionRecorded, []domain.Transaction{*result}, map[string]int64{result.AccountID: balance})
	return result, nil
}
