package app

import (
	"context"
	"fmt"

	"github.com/campusrewards/ledger-service/internal/metrics"
	"github.com/campusrewards/ledger-service/internal/store"
)

// AuditBalances compares every cached balance against the sum of its account's
// unfrozen entries. It only reports; nothing is corrected automatically.
func (s *Service) AuditBalances(ctx context.Context) (drift []store.BalanceDrift, err error) {
	ctx, finish := s.begin(ctx, "audit")
	defer func() { finish(err) }()

	drift, err = s.store.FindBalanceDrift(ctx)
	if err != nil {
		return nil, fmt.Errorf("find balance drift: %w", err)
	}
	metrics.RecordBalanceDrift(len(drift))
	for _, d := range drift {
		s.logger.Error("balance drift detected",
			"account_id", d.AccountID,
			"points", d.Points,
			"expected", d.Expected,
		)
	}
	return drift, nil
}
