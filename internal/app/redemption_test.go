package app

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusrewards/ledger-service/internal/domain"
)

func TestRequestRedemption(t *testing.T) {
	svc, mem, _ := newTestService(t)
	mem.PutAccount(domain.Account{ID: "alice001", Points: 100, Verified: true})
	mem.PutAccount(domain.Account{ID: "carol003", Points: 100})
	ctx := context.Background()

	_, err := svc.RequestRedemption(ctx, RedemptionInput{AccountID: "carol003", Amount: 10})
	require.ErrorIs(t, err, domain.ErrUnverifiedAccount)

	_, err = svc.RequestRedemption(ctx, RedemptionInput{AccountID: "alice001", Amount: 101})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = svc.RequestRedemption(ctx, RedemptionInput{AccountID: "alice001", Amount: 0})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.RequestRedemption(ctx, RedemptionInput{AccountID: "nobody00", Amount: 1})
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	tx, err := svc.RequestRedemption(ctx, RedemptionInput{AccountID: "alice001", Amount: 100, Remark: "hoodie"})
	require.NoError(t, err)
	assert.Equal(t, int64(-100), tx.Amount)
	assert.Nil(t, tx.Redeemed)
	assert.Nil(t, tx.RelatedID)
	assert.False(t, tx.Processed())
	assert.Zero(t, mustBalance(t, svc, "alice001"))
	assertNoDrift(t, mem)
}

func TestProcessRedemption(t *testing.T) {
	svc, mem, pub := newTestService(t)
	mem.PutAccount(domain.Account{ID: "alice001", Points: 100, Verified: true})
	ctx := context.Background()

	req, err := svc.RequestRedemption(ctx, RedemptionInput{AccountID: "alice001", Amount: 30})
	require.NoError(t, err)

	processed, err := svc.ProcessRedemption(ctx, ProcessRedemptionInput{TransactionID: req.ID, ProcessorID: "cashier1", IdempotencyKey: "key-1"})
	require.NoError(t, err)
	require.NotNil(t, processed.Redeemed)
	assert.Equal(t, int64(30), *processed.Redeemed)
	require.NotNil(t, processed.RelatedID)
	assert.Equal(t, "cashier1", *processed.RelatedID)
	assert.Equal(t, int64(70), mustBalance(t, svc, "alice001"))
	assert.Contains(t, pub.routingKeys(), domain.RoutingRedemptionProcessed)

	replay, err := svc.ProcessRedemption(ctx, ProcessRedemptionInput{TransactionID: req.ID, ProcessorID: "cashier1", IdempotencyKey: "key-1"})
	require.NoError(t, err)
	assert.Equal(t, processed.ID, replay.ID)
	assert.Equal(t, int64(30), *replay.Redeemed)

	_, err = svc.ProcessRedemption(ctx, ProcessRedemptionInput{TransactionID: req.ID, ProcessorID: "cashier2", IdempotencyKey: "key-2"})
	require.ErrorIs(t, err, domain.ErrAlreadyProcessed)

	_, err = svc.ProcessRedemption(ctx, ProcessRedemptionInput{TransactionID: req.ID, ProcessorID: "cashier2"})
	require.ErrorIs(t, err, domain.ErrAlreadyProcessed)

	assert.Equal(t, int64(70), mustBalance(t, svc, "alice001"))
	assertNoDrift(t, mem)
}

func TestProcessRedemption_Rejections(t *testing.T) {
	svc, mem, _ := newTestService(t)
	mem.PutAccount(domain.Account{ID: "alice001", Verified: true})
	ctx := context.Background()

	purchase, err := svc.CreatePurchase(ctx, PurchaseInput{AccountID: "alice001", Spent: dec(t, "5"), CreatedBy: "cashier1"})
	require.NoError(t, err)

	_, err = svc.ProcessRedemption(ctx, ProcessRedemptionInput{TransactionID: purchase.Transaction.ID, ProcessorID: "cashier1"})
	require.ErrorIs(t, err, domain.ErrWrongType)

	_, err = svc.ProcessRedemption(ctx, ProcessRedemptionInput{TransactionID: 999, ProcessorID: "cashier1"})
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)

	_, err = svc.ProcessRedemption(ctx, ProcessRedemptionInput{TransactionID: purchase.Transaction.ID})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestProcessRedemption_ConcurrentAtMostOnce(t *testing.T) {
	svc, mem, _ := newTestService(t)
	mem.PutAccount(domain.Account{ID: "alice001", Points: 50, Verified: true})
	ctx := context.Background()

	req, err := svc.RequestRedemption(ctx, RedemptionInput{AccountID: "alice001", Amount: 50})
	require.NoError(t, err)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		already   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ProcessRedemption(ctx, ProcessRedemptionInput{TransactionID: req.ID, ProcessorID: "cashier1"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, domain.ErrAlreadyProcessed):
				already++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, already)
	assert.Zero(t, mustBalance(t, svc, "alice001"))
}
