package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PromotionType distinguishes unlimited automatic promotions from one-time ones.
type PromotionType string

const (
	PromotionAutomatic PromotionType = "automatic"
	PromotionOneTime   PromotionType = "one_time"
)

// Promotion is the ledger's read-only view of a promotion. Name and description
// editing lives in the promotions service.
type Promotion struct {
	ID          int64            `json:"id"`
	Type        PromotionType    `json:"type"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time"`
	MinSpending *decimal.Decimal `json:"min_spending,omitempty"`
	Rate        *decimal.Decimal `json:"rate,omitempty"`
	Points      *int64           `json:"points,omitempty"`
}

// ActiveAt reports whether now falls inside [StartTime, EndTime).
func (p *Promotion) ActiveAt(now time.Time) bool {
	return !now.Before(p.StartTime) && now.Before(p.EndTime)
}

// PromotionUsage marks a one-time promotion as consumed by an account.
type PromotionUsage struct {
	AccountID   string    `json:"account_id"`
	PromotionID int64     `json:"promotion_id"`
	UsedAt      time.Time `json:"used_at"`
}
