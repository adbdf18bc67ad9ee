/**
 * @description
 * This file defines the core domain models for the ledger-service.
 * These structs represent the ledger entries, accounts and the request/response
 * shapes used by the service, store and API layers.
 *
 * @notes
 * - Points are always int64. Dollar amounts spent on purchases use decimal.Decimal
 *   so that the 4-points-per-dollar base rate never suffers float rounding drift.
 * - A transaction's amount is never mutated after creation. Corrections are new
 *   adjustment entries that reference the original.
 */

package domain

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates the kinds of ledger entry.
type TransactionType string

const (
	TypePurchase   TransactionType = "purchase"
	TypeRedemption TransactionType = "redemption"
	TypeTransfer   TransactionType = "transfer"
	TypeAdjustment TransactionType = "adjustment"
	TypeEvent      TransactionType = "event"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TypePurchase, TypeRedemption, TypeTransfer, TypeAdjustment, TypeEvent:
		return true
	}
	return false
}

// CarriesSuspiciousFlag reports whether entries of this type can be frozen.
func (t TransactionType) CarriesSuspiciousFlag() bool {
	return t == TypePurchase || t == TypeAdjustment
}

// Transaction is a single immutable ledger entry.
// This struct maps directly to the `transactions` table in the database.
type Transaction struct {
	ID                  int64            `json:"id"`
	AccountID           string           `json:"account_id"`
	Type                TransactionType  `json:"type"`
	Amount              int64            `json:"amount"`
	Spent               *decimal.Decimal `json:"spent,omitempty"`
	Redeemed            *int64           `json:"redeemed,omitempty"`
	RelatedID           *string          `json:"related_id,omitempty"`
	AppliedPromotionIDs []int64          `json:"promotion_ids"`
	Suspicious          bool             `json:"suspicious"`
	Remark              string           `json:"remark"`
	CreatedBy           string           `json:"created_by"`
	CreatedAt           time.Time        `json:"created_at"`
}

// Frozen reports whether the entry is recorded without a balance effect.
func (t *Transaction) Frozen() bool {
	return t.Suspicious && t.Type.CarriesSuspiciousFlag()
}

// BalanceEffect is the delta this entry currently contributes to its account.
func (t *Transaction) BalanceEffect() int64 {
	if t.Frozen() {
		return 0
	}
	return t.Amount
}

// Processed reports whether a redemption has reached its terminal state.
func (t *Transaction) Processed() bool {
	return t.Type == TypeRedemption && t.RelatedID != nil
}

// RelatedTransactionID parses the related id of an adjustment.
func (t *Transaction) RelatedTransactionID() (int64, bool) {
	if t.RelatedID == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(*t.RelatedID, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Account is the ledger's view of a member. Identity owns every field except Points.
type Account struct {
	ID         string `json:"id"`
	Points     int64  `json:"points"`
	Verified   bool   `json:"verified"`
	Suspicious bool   `json:"suspicious"`
}

// RedemptionProcessing records who moved a redemption to Processed and under which
// idempotency key, so that a retried call can be answered with the terminal state.
type RedemptionProcessing struct {
	TransactionID  int64     `json:"transaction_id"`
	ProcessorID    string    `json:"processor_id"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	ProcessedAt    time.Time `json:"processed_at"`
}

// StringID renders a numeric id for use as a RelatedID.
func StringID(id int64) *string {
	s := strconv.FormatInt(id, 10)
	return &s
}

// StringRef returns a pointer to a copy of s.
func StringRef(s string) *string {
	return &s
}
