package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/campusrewards/ledger-service/internal/domain"
	"github.com/campusrewards/ledger-service/internal/store"
)

type TransferInput struct {
	SenderID    string `json:"-"`
	RecipientID string `json:"recipient_id"`
	Amount      int64  `json:"amount"`
	Remark      string `json:"remark"`
}

type TransferResult struct {
	SenderTransaction    domain.Transaction `json:"sender_transaction"`
	RecipientTransaction domain.Transaction `json:"recipient_transaction"`
}

// Transfer moves amount points from sender to recipient as two linked entries
// committed together. The total of all balances is unchanged.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (result *TransferResult, err error) {
	ctx, finish := s.begin(ctx, "transfer",
		attribute.String("sender.id", in.SenderID),
		attribute.String("recipient.id", in.RecipientID),
	)
	defer func() { finish(err) }()

	in.SenderID = strings.TrimSpace(in.SenderID)
	in.RecipientID = strings.TrimSpace(in.RecipientID)
	if in.SenderID == "" || in.RecipientID == "" {
		return nil, domain.Invalid("sender and recipient are required")
	}
	if in.SenderID == in.RecipientID {
		return nil, domain.Invalid("cannot transfer points to yourself")
	}
	if in.Amount <= 0 {
		return nil, domain.Invalid("amount must be a positive integer")
	}
	if err := s.enforceRateLimit(ctx, ScopeTransfer, in.SenderID); err != nil {
		return nil, err
	}

	balances := make(map[string]int64, 2)
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		ids := []string{in.SenderID, in.RecipientID}
		sort.Strings(ids)
		accounts, err := tx.LockAccounts(ctx, ids...)
		if err != nil {
			return err
		}
		sender, ok := accounts[in.SenderID]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, in.SenderID)
		}
		if !sender.Verified {
			return fmt.Errorf("sender %s: %w", sender.ID, domain.ErrUnverifiedAccount)
		}
		recipient, ok := accounts[in.RecipientID]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrRecipientNotFound, in.RecipientID)
		}

		now := s.now().UTC()
		debit := &domain.Transaction{
			AccountID: sender.ID,
			Type:      domain.TypeTransfer,
			Amount:    -in.Amount,
			RelatedID: domain.StringRef(recipient.ID),
			Remark:    in.Remark,
			CreatedBy: sender.ID,
			CreatedAt: now,
		}
		if err := store.Record(ctx, tx, sender, debit); err != nil {
			return err
		}
		credit := &domain.Transaction{
			AccountID: recipient.ID,
			Type:      domain.TypeTransfer,
			Amount:    in.Amount,
			RelatedID: domain.StringRef(sender.ID),
			Remark:    in.Remark,
			CreatedBy: sender.ID,
			CreatedAt: now,
		}
		if err := store.Record(ctx, tx, recipient, credit); err != nil {
			return err
		}
		balances[sender.ID] = sender.Points
		balances[recipient.ID] = recipient.Points
		result = &TransferResult{SenderTransaction: *debit, RecipientTransaction: *credit}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transfer recorded",
		"sender_id", in.SenderID,
		"recipient_id", in.RecipientID,
		"amount", in.Amount,
		"sender_transaction_id", result.SenderTransaction.ID,
		"recipient_transaction_id", result.RecipientTransaction.ID,
	)
	s.committed(ctx, domain.RoutingTransactionRecorded,
		[]domain.Transaction{result.SenderTransaction, result.RecipientTransaction}, balances)
	return result, nil
}
