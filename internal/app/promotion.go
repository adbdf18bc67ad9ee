package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campusrewards/ledger-service/internal/domain"
	"github.com/campusrewards/ledger-service/internal/store"
)

// BasePointsPerDollar is earned on every purchase regardless of promotions.
var BasePointsPerDollar = decimal.NewFromInt(4)

// Evaluation is the outcome of pricing a purchase.
type Evaluation struct {
	EarnedPoints        int64
	AppliedPromotionIDs []int64
}

var (
	maxPoints = decimal.NewFromInt(math.MaxInt64)
	minPoints = decimal.NewFromInt(math.MinInt64)
)

// roundPoints rounds half away from zero. Results outside int64 are a validation error.
func roundPoints(d decimal.Decimal) (int64, error) {
	rounded := d.Round(0)
	if rounded.GreaterThan(maxPoints) || rounded.LessThan(minPoints) {
		return 0, domain.Invalid("points %s are out of range", rounded.String())
	}
	return rounded.IntPart(), nil
}

// BasePoints is round(spent * 4).
func BasePoints(spent decimal.Decimal) (int64, error) {
	return roundPoints(spent.Mul(BasePointsPerDollar))
}

// dedupeIDs keeps the first occurrence of each id.
func dedupeIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// evaluatePromotions prices a purchase of spent for accountID at now. One-time
// usages are written through tx, so they commit or roll back with the purchase.
func evaluatePromotions(ctx context.Context, tx store.Tx, accountID string, spent decimal.Decimal, promotionIDs []int64, now time.Time) (*Evaluation, error) {
	if !spent.IsPositive() {
		return nil, domain.Invalid("spent must be positive")
	}

	ids := dedupeIDs(promotionIDs)
	promotions, err := tx.GetPromotions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load promotions: %w", err)
	}

	base, err := BasePoints(spent)
	if err != nil {
		return nil, err
	}
	eval := &Evaluation{
		EarnedPoints:        base,
		AppliedPromotionIDs: make([]int64, 0, len(ids)),
	}
	addBonus := func(bonus int64) error {
		total, err := domain.AddPoints(eval.EarnedPoints, bonus)
		if err != nil {
			return err
		}
		eval.EarnedPoints = total
		return nil
	}
	for _, id := range ids {
		promotion, ok := promotions[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", domain.ErrPromotionNotFound, id)
		}
		if !promotion.ActiveAt(now) {
			return nil, fmt.Errorf("promotion %d: %w", id, domain.ErrPromotionNotActive)
		}

		switch promotion.Type {
		case domain.PromotionOneTime:
			used, err := tx.HasPromotionUsage(ctx, accountID, id)
			if err != nil {
				return nil, fmt.Errorf("check promotion usage: %w", err)
			}
			if used {
				return nil, fmt.Errorf("promotion %d: %w", id, domain.ErrPromotionAlreadyUsed)
			}
			if promotion.Points != nil {
				if err := addBonus(*promotion.Points); err != nil {
					return nil, err
				}
			}
			if err := tx.InsertPromotionUsage(ctx, domain.PromotionUsage{AccountID: accountID, PromotionID: id, UsedAt: now}); err != nil {
				return nil, err
			}
		case domain.PromotionAutomatic:
			if promotion.MinSpending != nil && spent.LessThan(*promotion.MinSpending) {
				return nil, fmt.Errorf("promotion %d requires %s: %w", id, promotion.MinSpending.StringFixed(2), domain.ErrMinimumSpendingNotMet)
			}
			if promotion.Rate != nil {
				bonus, err := roundPoints(spent.Mul(*promotion.Rate))
				if err != nil {
					return nil, err
				}
				if err := addBonus(bonus); err != nil {
					return nil, err
				}
			}
			if promotion.Points != nil {
				if err := addBonus(*promotion.Points); err != nil {
					return nil, err
				}
			}
		default:
			return nil, fmt.Errorf("promotion %d has unknown type %q", id, promotion.Type)
		}
		eval.AppliedPromotionIDs = append(eval.AppliedPromotionIDs, id)
	}
	return eval, nil
}
