package app

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/campusrewards/ledger-service/internal/domain"
	"github.com/campusrewards/ledger-service/internal/store"
)

// EventAwardInput awards amount to one guest, or to every guest when
// TargetAccountID is empty.
type EventAwardInput struct {
	EventID         int64  `json:"-"`
	Amount          int64  `json:"amount"`
	TargetAccountID string `json:"account_id,omitempty"`
	Remark          string `json:"remark"`
	CreatedBy       string `json:"-"`
}

// AwardEventPoints pays out of the event budget. A broadcast is all or nothing:
// the whole total is checked against the remaining budget before any entry is
// written. Entries are returned in ascending guest id order.
func (s *Service) AwardEventPoints(ctx context.Context, in EventAwardInput) (awards []domain.Transaction, err error) {
	ctx, finish := s.begin(ctx, "event_award",
		attribute.Int64("event.id", in.EventID),
		attribute.Bool("broadcast", in.TargetAccountID == ""),
	)
	defer func() { finish(err) }()

	in.TargetAccountID = strings.TrimSpace(in.TargetAccountID)
	if in.Amount <= 0 {
		return nil, domain.Invalid("amount must be a positive integer")
	}

	balances := make(map[string]int64)
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		event, err := tx.LockEvent(ctx, in.EventID)
		if err != nil {
			return err
		}

		var recipients []string
		if in.TargetAccountID != "" {
			if !event.HasGuest(in.TargetAccountID) {
				return fmt.Errorf("account %s, event %d: %w", in.TargetAccountID, event.ID, domain.ErrNotAGuest)
			}
			recipients = []string{in.TargetAccountID}
		} else {
			recipients = append(recipients, event.Guests...)
			sort.Strings(recipients)
		}
		if len(recipients) == 0 {
			awards = []domain.Transaction{}
			return nil
		}

		total := in.Amount * int64(len(recipients))
		if total/int64(len(recipients)) != in.Amount {
			return domain.Invalid("award total overflows")
		}
		if event.PointsRemain() < total {
			return fmt.Errorf("event %d has %d remaining, award needs %d: %w", event.ID, event.PointsRemain(), total, domain.ErrBudgetExceeded)
		}

		accounts, err := tx.LockAccounts(ctx, recipients...)
		if err != nil {
			return err
		}

		eventRef := strconv.FormatInt(event.ID, 10)
		now := s.now().UTC()
		awards = make([]domain.Transaction, 0, len(recipients))
		for _, guestID := range recipients {
			account, ok := accounts[guestID]
			if !ok {
				return fmt.Errorf("%w: guest %s", domain.ErrAccountNotFound, guestID)
			}
			entry := &domain.Transaction{
				AccountID: account.ID,
				Type:      domain.TypeEvent,
				Amount:    in.Amount,
				RelatedID: domain.StringRef(eventRef),
				Remark:    in.Remark,
				CreatedBy: in.CreatedBy,
				CreatedAt: now,
			}
			if err := store.Record(ctx, tx, account, entry); err != nil {
				return err
			}
			balances[account.ID] = account.Points
			awards = append(awards, *entry)
		}
		return tx.UpdateEventAwarded(ctx, event.ID, event.PointsAwarded+total)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("event points awarded",
		"event_id", in.EventID,
		"recipients", len(awards),
		"amount", in.Amount,
	)
	s.committed(ctx, domain.RoutingTransactionRecorded, awards, balances)
	return awards, nil
}
