package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys for events published after a unit of work commits.
const (
	RoutingTransactionRecorded = "ledger.transaction.recorded"
	RoutingRedemptionProcessed = "ledger.redemption.processed"
	RoutingSuspiciousChanged   = "ledger.transaction.suspicious_changed"
	RoutingFlagCommand         = "ledger.transaction.flag"
)

// LedgerEvent is the payload published to the ledger events exchange.
type LedgerEvent struct {
	ID          uuid.UUID   `json:"id"`
	Transaction Transaction `json:"transaction"`
	Balance     *int64      `json:"balance,omitempty"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

// FlagCommand asks the ledger to change a transaction's suspicious flag.
type FlagCommand struct {
	TransactionID int64 `json:"transaction_id"`
	Suspicious    bool  `json:"suspicious"`
}
