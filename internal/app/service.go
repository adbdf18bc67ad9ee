/**
 * @description
 * This file contains the core business logic for the ledger-service. The `Service`
 * struct orchestrates every points movement, opening exactly one unit of work on
 * the store per operation and publishing the committed entries afterwards.
 *
 * Key features:
 * - Purchases with stacked promotions, adjustments, redemptions, transfers and
 *   event awards.
 * - Retroactive suspicious-flag reconciliation.
 * - Publishes events to RabbitMQ only after the unit of work has committed.
 *
 * @dependencies
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publishing.
 * - go.opentelemetry.io/otel: Spans around each operation.
 */

package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/campusrewards/ledger-service/internal/domain"
	"github.com/campusrewards/ledger-service/internal/metrics"
	"github.com/campusrewards/ledger-service/internal/store"
	"github.com/campusrewards/ledger-service/pkg/rabbitmq"
)

const (
	DefaultEventsExchange = "ledger.events"

	defaultListLimit = 20
	maxListLimit     = 100
	publishTimeout   = 5 * time.Second
)

// Service provides the core business logic for the points ledger.
type Service struct {
	store          store.Store
	publisher      rabbitmq.Publisher
	eventsExchange string
	logger         *slog.Logger
	tracer         trace.Tracer
	now            func() time.Time

	rateLimiter RateLimiter
	rateLimits  RateLimits
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now, mainly for promotion window tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEventsExchange sets the exchange committed entries are published to.
func WithEventsExchange(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.eventsExchange = name
		}
	}
}

// NewService creates a new ledger service instance.
func NewService(st store.Store, publisher rabbitmq.Publisher, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = &rabbitmq.EventProducerFallback{Logger: logger}
	}
	s := &Service{
		store:          st,
		publisher:      publisher,
		eventsExchange: DefaultEventsExchange,
		logger:         logger.With("component", "ledger"),
		tracer:         otel.Tracer("ledger-service/app"),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// begin starts a span for operation and returns a finish func that records the
// outcome on the span and in the operation histogram.
func (s *Service) begin(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "ledger."+operation, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		outcome := "success"
		if err != nil {
			outcome = outcomeFor(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		metrics.RecordOperation(operation, outcome, time.Since(started).Seconds())
	}
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrUnverifiedAccount),
		errors.Is(err, domain.ErrPromotionNotActive),
		errors.Is(err, domain.ErrPromotionAlreadyUsed),
		errors.Is(err, domain.ErrMinimumSpendingNotMet),
		errors.Is(err, domain.ErrBudgetExceeded),
		errors.Is(err, domain.ErrNotAGuest),
		errors.Is(err, domain.ErrAlreadyProcessed),
		errors.Is(err, domain.ErrWrongType):
		return "rejected"
	default:
		return "error"
	}
}

// committed records point metrics and publishes each entry. It must only be called
// after WithinTx has returned nil. Publishing is fire-and-forget.
func (s *Service) committed(ctx context.Context, routingKey string, entries []domain.Transaction, balances map[string]int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	for i := range entries {
		entry := entries[i]
		if routingKey == domain.RoutingTransactionRecorded {
			metrics.RecordPoints(string(entry.Type), entry.BalanceEffect())
		}
		event := domain.LedgerEvent{
			ID:          uuid.New(),
			Transaction: entry,
			OccurredAt:  s.now().UTC(),
		}
		if balance, ok := balances[entry.AccountID]; ok {
			event.Balance = &balance
		}
		if err := s.publisher.Publish(ctx, s.eventsExchange, routingKey, event); err != nil {
			s.logger.Warn("ledger event publish failed",
				"routing_key", routingKey,
				"transaction_id", entry.ID,
				"error", err,
			)
		}
	}
}

func (s *Service) Balance(ctx context.Context, accountID string) (int64, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.Points, nil
}

func (s *Service) GetTransaction(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	return s.store.GetTransaction(ctx, transactionID)
}

// ListAccountTransactions returns the account's entries newest first. limit is
// clamped to [1, 100] and defaults to 20.
func (s *Service) ListAccountTransactions(ctx context.Context, accountID string, limit, offset int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		return nil, domain.Invalid("offset must not be negative")
	}
	return s.store.ListAccountTransactions(ctx, accountID, limit, offset)
}

func (s *Service) GetEvent(ctx context.Context, eventID int64) (*domain.Event, error) {
	return s.store.GetEvent(ctx, eventID)
}
