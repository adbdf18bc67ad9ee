package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusrewards/ledger-service/internal/domain"
)

func TestCreateAdjustment(t *testing.T) {
	svc, mem, _ := newTestService(t)
	seedPromotions(t, mem)
	mem.PutAccount(domain.Account{ID: "alice001", Verified: true})
	ctx := context.Background()

	purchase, err := svc.CreatePurchase(ctx, PurchaseInput{AccountID: "alice001", Spent: dec(t, "10"), CreatedBy: "cashier1"})
	require.NoError(t, err)

	adj, err := svc.CreateAdjustment(ctx, AdjustmentInput{
		AccountID:            "alice001",
		Amount:               -15,
		RelatedTransactionID: purchase.Transaction.ID,
		PromotionIDs:         []int64{promoDoubleRate, promoDoubleRate},
		Remark:               "overrang",
		CreatedBy:            "mgr",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TypeAdjustment, adj.Type)
	assert.Equal(t, int64(-15), adj.Amount)
	assert.Equal(t, []int64{promoDoubleRate}, adj.AppliedPromotionIDs)
	relatedID, ok := adj.RelatedTransactionID()
	require.True(t, ok)
	assert.Equal(t, purchase.Transaction.ID, relatedID)
	assert.Equal(t, int64(25), mustBalance(t, svc, "alice001"))
	assertNoDrift(t, mem)
}

func TestCreateAdjustment_Rejections(t *testing.T) {
	svc, mem, _ := newTestService(t)
	seedPromotions(t, mem)
	mem.PutAccount(domain.Account{ID: "alice001", Verified: true})
	mem.PutAccount(domain.Account{ID: "bob00002", Verified: true})
	ctx := context.Background()

	purchase, err := svc.CreatePurchase(ctx, PurchaseInput{AccountID: "alice001", Spent: dec(t, "10"), CreatedBy: "cashier1"})
	require.NoError(t, err)
	related := purchase.Transaction.ID

	cases := []struct {
		name    string
		in      AdjustmentInput
		wantErr error
	}{
		{name: "zero amount", in: AdjustmentInput{AccountID: "alice001", Amount: 0, RelatedTransactionID: related}, wantErr: domain.ErrValidation},
		{name: "missing related", in: AdjustmentInput{AccountID: "alice001", Amount: 5}, wantErr: domain.ErrValidation},
		{name: "unknown related", in: AdjustmentInput{AccountID: "alice001", Amount: 5, RelatedTransactionID: 999}, wantErr: domain.ErrTransactionNotFound},
		{name: "other account", in: AdjustmentInput{AccountID: "bob00002", Amount: 5, RelatedTransactionID: related}, wantErr: domain.ErrValidation},
		{name: "unknown promotion", in: AdjustmentInput{AccountID: "alice001", Amount: 5, RelatedTransactionID: related, PromotionIDs: []int64{99}}, wantErr: domain.ErrPromotionNotFound},
		{name: "negative balance", in: AdjustmentInput{AccountID: "alice001", Amount: -41, RelatedTransactionID: related}, wantErr: domain.ErrInsufficientFunds},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.in.CreatedBy = "mgr"
			_, err := svc.CreateAdjustment(ctx, tc.in)
			require.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, int64(40), mustBalance(t, svc, "alice001"))
			assert.Zero(t, mustBalance(t, svc, "bob00002"))
		})
	}
}

func TestCreateAdjustment_SuspiciousFlagApplies(t *testing.T) {
	svc, mem, _ := newTestService(t)
	mem.PutAccount(domain.Account{ID: "alice001", Verified: true})
	ctx := context.Background()

	purchase, err := svc.CreatePurchase(ctx, PurchaseInput{AccountID: "alice001", Spent: dec(t, "10"), CreatedBy: "cashier1"})
	require.NoError(t, err)
	adj, err := svc.CreateAdjustment(ctx, AdjustmentInput{AccountID: "alice001", Amount: 30, RelatedTransactionID: purchase.Transaction.ID, CreatedBy: "mgr"})
	require.NoError(t, err)
	assert.Equal(t, int64(70), mustBalance(t, svc, "alice001"))

	_, err = svc.SetSuspicious(ctx, adj.ID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(40), mustBalance(t, svc, "alice001"))
	assertNoDrift(t, mem)
}
