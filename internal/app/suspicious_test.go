package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusrewards/ledger-service/internal/domain"
)

func TestSetSuspicious_RoundTripRestoresBalance(t *testing.T) {
	svc, mem, pub := newTestService(t)
	mem.PutAccount(domain.Account{ID: "alice001", Verified: true})
	ctx := context.Background()

	purchase, err := svc.CreatePurchase(ctx, PurchaseInput{AccountID: "alice001", Spent: dec(t, "20"), CreatedBy: "cashier1"})
	require.NoError(t, err)
	before := mustBalance(t, svc, "alice001")
	assert.Equal(t, int64(80), before)

	flagged, err := svc.SetSuspicious(ctx, purchase.Transaction.ID, true)
	require.NoError(t, err)
	assert.True(t, flagged.Suspicious)
	assert.Equal(t, before-80, mustBalance(t, svc, "alice001"))

	cleared, err := svc.SetSuspicious(ctx, purchase.Transaction.ID, false)
	require.NoError(t, err)
	assert.False(t, cleared.Suspicious)
	assert.Equal(t, before, mustBalance(t, svc, "alice001"))
	assert.Equal(t, []string{
		domain.RoutingTransactionRecorded,
		domain.RoutingSuspiciousChanged,
		domain.RoutingSuspiciousChanged,
	}, pub.routingKeys())
}

func TestSetSuspicious_NoopWhenUnchanged(t *testing.T) {
	svc, mem, pub := newTestService(t)
	mem.PutAccount(domain.Account{ID: "alice001", Verified: true})
	ctx := context.Background()

	purchase, err := svc.CreatePurchase(ctx, PurchaseInput{AccountID: "alice001", Spent: dec(t, "5"), CreatedBy: "cashier1"})
	require.NoError(t, err)

	got, err := svc.SetSuspicious(ctx, purchase.Transaction.ID, false)
	require.NoError(t, err)
	assert.Equal(t, purchase.Transaction.ID, got.ID)
	assert.Equal(t, int64(20), mustBalance(t, svc, "alice001"))
	assert.Len(t, pub.routingKeys(), 1)
}

func TestSetSuspicious_Rejections(t *testing.T) {
	svc, mem, _ := newTestService(t)
	mem.PutAccount(domain.Account{ID: "alice001", Verified: true})
	mem.PutAccount(domain.Account{ID: "bob00002", Verified: true})
	ctx := context.Background()

	purchase, err := svc.CreatePurchase(ctx, PurchaseInput{AccountID: "alice001", Spent: dec(t, "25"), CreatedBy: "cashier1"})
	require.NoError(t, err)
	transfer, err := svc.Transfer(ctx, TransferInput{SenderID: "alice001", RecipientID: "bob00002", Amount: 60})
	require.NoError(t, err)

	_, err = svc.SetSuspicious(ctx, transfer.SenderTransaction.ID, true)
	require.ErrorIs(t, err, domain.ErrWrongType)

	_, err = svc.SetSuspicious(ctx, 999, true)
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)

	// Only 40 of the purchase's 100 points remain, so freezing would go negative.
	_, err = svc.SetSuspicious(ctx, purchase.Transaction.ID, true)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, int64(40), mustBalance(t, svc, "alice001"))

	got, err := svc.GetTransaction(ctx, purchase.Transaction.ID)
	require.NoError(t, err)
	assert.False(t, got.Suspicious)
	assertNoDrift(t, mem)
}

func TestSuspiciousDelta(t *testing.T) {
	assert.Equal(t, int64(0), suspiciousDelta(50, true, true))
	assert.Equal(t, int64(0), suspiciousDelta(50, false, false))
	assert.Equal(t, int64(-50), suspiciousDelta(50, false, true))
	assert.Equal(t, int64(50), suspiciousDelta(50, true, false))
	assert.Equal(t, int64(20), suspiciousDelta(-20, false, true))
	assert.Equal(t, int64(-20), suspiciousDelta(-20, true, false))
}
