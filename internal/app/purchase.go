package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/campusrewards/ledger-service/internal/domain"
	"github.com/campusrewards/ledger-service/internal/store"
)

// MaxSpent is the largest purchase amount the transactions.spent column holds.
var MaxSpent = decimal.RequireFromString("999999999999.99")

// PurchaseInput describes a purchase rung up by a cashier.
type PurchaseInput struct {
	AccountID    string          `json:"account_id"`
	Spent        decimal.Decimal `json:"spent"`
	PromotionIDs []int64         `json:"promotion_ids"`
	Remark       string          `json:"remark"`
	CreatedBy    string          `json:"-"`
	// CreatorSuspicious freezes the entry when the acting cashier is flagged.
	CreatorSuspicious bool `json:"-"`
}

type PurchaseResult struct {
	Transaction         domain.Transaction `json:"transaction"`
	EarnedPoints        int64              `json:"earned_points"`
	AppliedPromotionIDs []int64            `json:"applied_promotion_ids"`
}

// CreatePurchase credits the account with base plus promotion points. A frozen
// entry is recorded but does not move the balance until it is cleared.
func (s *Service) CreatePurchase(ctx context.Context, in PurchaseInput) (result *PurchaseResult, err error) {
	ctx, finish := s.begin(ctx, "purchase", attribute.String("account.id", in.AccountID))
	defer func() { finish(err) }()

	in.AccountID = strings.TrimSpace(in.AccountID)
	if in.AccountID == "" {
		return nil, domain.Invalid("account_id is required")
	}
	if !in.Spent.IsPositive() {
		return nil, domain.Invalid("spent must be positive")
	}
	if in.Spent.Exponent() < -2 {
		return nil, domain.Invalid("spent has more than two decimal places")
	}
	if in.Spent.GreaterThan(MaxSpent) {
		return nil, domain.Invalid("spent exceeds %s", MaxSpent.StringFixed(2))
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

		now := s.now()
		eval, err := evaluatePromotions(ctx, tx, account.ID, in.Spent, in.PromotionIDs, now)
		if err != nil {
			return err
		}

		spent := in.Spent
		entry := &domain.Transaction{
			AccountID:           account.ID,
			Type:                domain.TypePurchase,
			Amount:              eval.EarnedPoints,
			Spent:               &spent,
			AppliedPromotionIDs: eval.AppliedPromotionIDs,
			Suspicious:          in.CreatorSuspicious,
			Remark:              in.Remark,
			CreatedBy:           in.CreatedBy,
			CreatedAt:           now.UTC(),
		}
		if err := store.Record(ctx, tx, account, entry); err != nil {
			return err
		}
		balance = account.Points
		result = &PurchaseResult{
			Transaction:         *entry,
			EarnedPoints:        eval.EarnedPoints,
			AppliedPromotionIDs: eval.AppliedPromotionIDs,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("purchase recorded",
		"transaction_id", result.Transaction.ID,
		"account_id", in.AccountID,
		"earned_points", result.EarnedPoints,
		"frozen", result.Transaction.Frozen(),
	)
	s.committed(ctx, domain.RoutingTransactionRecorded, []domain.Transaction{result.Transaction}, map[string]int64{in.AccountID: balance})
	return result, nil
}
