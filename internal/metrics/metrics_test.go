package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordPoints(t *testing.T) {
	credit := PointsMoved.WithLabelValues("transfer", "credit")
	debit := PointsMoved.WithLabelValues("transfer", "debit")
	beforeCredit, beforeDebit := testutil.ToFloat64(credit), testutil.ToFloat64(debit)

	RecordPoints("transfer", 40)
	RecordPoints("transfer", -40)
	RecordPoints("transfer", 0)

	assert.Equal(t, beforeCredit+40, testutil.ToFloat64(credit))
	assert.Equal(t, beforeDebit+40, testutil.ToFloat64(debit))
}

func TestRecordBalanceDrift(t *testing.T) {
	RecordBalanceDrift(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(BalanceDriftAccounts))
	RecordBalanceDrift(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(BalanceDriftAccounts))
}

func TestRecordOperation(t *testing.T) {
	RecordOperation("transfer", "success", 0.002)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(OperationDuration), 1)
}
