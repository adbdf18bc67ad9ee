package app

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusrewards/ledger-service/internal/domain"
	"github.com/campusrewards/ledger-service/internal/metrics"
	"github.com/campusrewards/ledger-service/internal/store"
)

// failingStore fails every unit of work with an infrastructure error.
type failingStore struct {
	store.Store
}

func (failingStore) WithinTx(context.Context, func(store.Tx) error) error {
	return assert.AnError
}

func (failingStore) FindBalanceDrift(context.Context) ([]store.BalanceDrift, error) {
	return nil, assert.AnError
}

func TestScheduler_StartRejectsBadSchedule(t *testing.T) {
	svc, _, _ := newTestService(t)
	s := NewScheduler(svc, discardLogger(), "not a schedule")
	require.Error(t, s.Start())
	<-s.Stop().Done()
}

func TestScheduler_StartWithoutSchedule(t *testing.T) {
	svc, _, _ := newTestService(t)
	s := NewScheduler(svc, discardLogger(), "")
	require.NoError(t, s.Start())
	<-s.Stop().Done()
}

func TestScheduler_RunAudit(t *testing.T) {
	svc, mem, _ := newTestService(t)
	mem.PutAccount(domain.Account{ID: "alice001", Points: 5})
	s := NewScheduler(svc, discardLogger(), "@every 1h")
	require.NoError(t, s.Start())
	defer func() { <-s.Stop().Done() }()

	s.runAudit()
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.BalanceDriftAccounts))

	failing := NewScheduler(NewService(failingStore{mem}, nil, discardLogger()), discardLogger(), "")
	failing.runAudit()
}
