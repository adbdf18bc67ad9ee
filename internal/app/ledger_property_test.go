package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/campusrewards/ledger-service/internal/domain"
	"github.com/campusrewards/ledger-service/internal/store"
)

var propertyAccounts = []string{"acct0001", "acct0002", "acct0003"}

// expectedRejection lists the business errors a random operation may legitimately hit.
func expectedRejection(err error) bool {
	for _, kind := range []error{
		domain.ErrInsufficientFunds,
		domain.ErrValidation,
		domain.ErrAlreadyProcessed,
		domain.ErrWrongType,
		domain.ErrBudgetExceeded,
		domain.ErrNotFound,
		domain.ErrPromotionAlreadyUsed,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

func newPropertyService() (*Service, *store.MemoryStore) {
	mem := store.NewMemoryStore(func() time.Time { return testNow })
	for _, id := range propertyAccounts {
		mem.PutAccount(domain.Account{ID: id, Verified: true})
	}
	mem.PutPromotion(domain.Promotion{
		ID: 1, Type: domain.PromotionOneTime, Points: int64Ptr(25),
		StartTime: testNow.Add(-time.Hour), EndTime: testNow.Add(time.Hour),
	})
	mem.PutEvent(domain.Event{ID: 1, Points: 300, Guests: propertyAccounts})
	return NewService(mem, &recordingPublisher{}, discardLogger(), WithClock(func() time.Time { return testNow })), mem
}

// TestLedger_BalanceInvariant drives random operation sequences and checks that
// every cached balance equals the sum of its unfrozen entries, no balance goes
// negative, and the event budget is never overspent.
func TestLedger_BalanceInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		svc, mem := newPropertyService()
		ctx := context.Background()
		var txIDs []int64

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			account := rapid.SampledFrom(propertyAccounts).Draw(t, "account")
			var err error
			switch op := rapid.IntRange(0, 6).Draw(t, "op"); op {
			case 0:
				cents := rapid.Int64Range(1, 20000).Draw(t, "cents")
				var promos []int64
				if rapid.Bool().Draw(t, "promo") {
					promos = []int64{1}
				}
				var res *PurchaseResult
				res, err = svc.CreatePurchase(ctx, PurchaseInput{
					AccountID: account, Spent: decimal.New(cents, -2), PromotionIDs: promos,
					CreatedBy: "cashier1", CreatorSuspicious: rapid.Bool().Draw(t, "frozen"),
				})
				if err == nil {
					txIDs = append(txIDs, res.Transaction.ID)
				}
			case 1:
				var tx *domain.Transaction
				tx, err = svc.RequestRedemption(ctx, RedemptionInput{AccountID: account, Amount: rapid.Int64Range(1, 200).Draw(t, "amount")})
				if err == nil {
					txIDs = append(txIDs, tx.ID)
				}
			case 2:
				recipient := rapid.SampledFrom(propertyAccounts).Draw(t, "recipient")
				_, err = svc.Transfer(ctx, TransferInput{SenderID: account, RecipientID: recipient, Amount: rapid.Int64Range(1, 200).Draw(t, "amount")})
			case 3:
				target := ""
				if rapid.Bool().Draw(t, "targeted") {
					target = account
				}
				_, err = svc.AwardEventPoints(ctx, EventAwardInput{EventID: 1, Amount: rapid.Int64Range(1, 60).Draw(t, "amount"), TargetAccountID: target})
			case 4, 5:
				if len(txIDs) == 0 {
					continue
				}
				id := rapid.SampledFrom(txIDs).Draw(t, "tx")
				if op == 4 {
					_, err = svc.SetSuspicious(ctx, id, rapid.Bool().Draw(t, "flag"))
				} else {
					_, err = svc.ProcessRedemption(ctx, ProcessRedemptionInput{TransactionID: id, ProcessorID: "cashier1"})
				}
			case 6:
				if len(txIDs) == 0 {
					continue
				}
				related := rapid.SampledFrom(txIDs).Draw(t, "related")
				owner, getErr := svc.GetTransaction(ctx, related)
				if getErr != nil {
					t.Fatalf("get transaction: %v", getErr)
				}
				_, err = svc.CreateAdjustment(ctx, AdjustmentInput{
					AccountID: owner.AccountID, Amount: rapid.Int64Range(-100, 100).Draw(t, "delta"),
					RelatedTransactionID: related, CreatedBy: "mgr",
				})
			}
			if err != nil && !expectedRejection(err) {
				t.Fatalf("step %d: unexpected error: %v", i, err)
			}
			checkInvariants(t, svc, mem)
		}
	})
}

func checkInvariants(t *rapid.T, svc *Service, mem *store.MemoryStore) {
	ctx := context.Background()
	drift, err := mem.FindBalanceDrift(ctx)
	if err != nil {
		t.Fatalf("find drift: %v", err)
	}
	if len(drift) > 0 {
		t.Fatalf("balance drift: %+v", drift)
	}
	for _, id := range propertyAccounts {
		balance, err := svc.Balance(ctx, id)
		if err != nil {
			t.Fatalf("balance %s: %v", id, err)
		}
		if balance < 0 {
			t.Fatalf("account %s went negative: %d", id, balance)
		}
	}
	event, err := svc.GetEvent(ctx, 1)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if event.PointsRemain() < 0 {
		t.Fatalf("event overspent: %+v", event)
	}
}

// TestTransfer_ZeroSum checks the system-wide total is unchanged by any transfer.
func TestTransfer_ZeroSum(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		mem := store.NewMemoryStore(nil)
		var total int64
		for _, id := range propertyAccounts {
			points := rapid.Int64Range(0, 500).Draw(t, fmt.Sprintf("points_%s", id))
			total += points
			mem.PutAccount(domain.Account{ID: id, Points: points, Verified: true})
		}
		svc := NewService(mem, &recordingPublisher{}, discardLogger())
		ctx := context.Background()

		for i := rapid.IntRange(1, 20).Draw(t, "transfers"); i > 0; i-- {
			_, err := svc.Transfer(ctx, TransferInput{
				SenderID:    rapid.SampledFrom(propertyAccounts).Draw(t, "sender"),
				RecipientID: rapid.SampledFrom(propertyAccounts).Draw(t, "recipient"),
				Amount:      rapid.Int64Range(-5, 600).Draw(t, "amount"),
			})
			if err != nil && !expectedRejection(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		var after int64
		for _, id := range propertyAccounts {
			balance, err := svc.Balance(ctx, id)
			if err != nil {
				t.Fatalf("balance: %v", err)
			}
			after += balance
		}
		if after != total {
			t.Fatalf("total changed from %d to %d", total, after)
		}
	})
}
