/**
 * @description
 * This file provides the PostgreSQL implementation of the `Store` interface.
 * Every unit of work is one database transaction; locking reads use
 * `SELECT ... FOR UPDATE` and account rows are always locked ordered by id.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: NUMERIC columns are read as text and parsed.
 */

package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/campusrewards/ledger-service/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

const (
	pgUniqueViolation   = "23505"
	pgCheckViolation    = "23514"
	pgNumericOutOfRange = "22003"
)

// mapPgError translates constraint failures into ledger error kinds. uniqueKind and
// checkKind are what a unique or CHECK violation means for the failed statement;
// nil leaves that violation unmapped. Numeric overflow is always a validation error.
func mapPgError(err error, uniqueKind, checkKind error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == pgUniqueViolation && uniqueKind != nil:
		return uniqueKind
	case pgErr.Code == pgCheckViolation && checkKind != nil:
		return checkKind
	case pgErr.Code == pgNumericOutOfRange:
		return domain.Invalid("value out of range: %s", pgErr.Message)
	}
	return err
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a concrete implementation of the Store interface for PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new instance of PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the ledger tables if they do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&postgresTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	var a domain.Account
	err := s.db.QueryRow(ctx,
		`SELECT id, points, verified, suspicious FROM accounts WHERE id = $1`,
		accountID,
	).Scan(&a.ID, &a.Points, &a.Verified, &a.Suspicious)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, accountNotFound(accountID)
		}
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	return getTransaction(ctx, s.db, transactionID, false)
}

func (s *PostgresStore) ListAccountTransactions(ctx context.Context, accountID string, limit int, offset int) ([]domain.Transaction, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE account_id = $1
		 ORDER BY id DESC
		 LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetPromotion(ctx context.Context, promotionID int64) (*domain.Promotion, error) {
	promotions, err := getPromotions(ctx, s.db, []int64{promotionID})
	if err != nil {
		return nil, err
	}
	p, ok := promotions[promotionID]
	if !ok {
		return nil, promotionNotFound(promotionID)
	}
	return p, nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, eventID int64) (*domain.Event, error) {
	return getEvent(ctx, s.db, eventID, false)
}

func (s *PostgresStore) FindBalanceDrift(ctx context.Context) ([]BalanceDrift, error) {
	rows, err := s.db.Query(ctx, `
		SELECT a.id, a.points, COALESCE(SUM(t.amount) FILTER (
			WHERE NOT (t.suspicious AND t.type IN ('purchase', 'adjustment'))
		), 0) AS expected
		FROM accounts a
		LEFT JOIN transactions t ON t.account_id = a.id
		GROUP BY a.id, a.points
		HAVING a.points <> COALESCE(SUM(t.amount) FILTER (
			WHERE NOT (t.suspicious AND t.type IN ('purchase', 'adjustment'))
		), 0)
		ORDER BY a.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drift := make([]BalanceDrift, 0)
	for rows.Next() {
		var d BalanceDrift
		if err := rows.Scan(&d.AccountID, &d.Points, &d.Expected); err != nil {
			return nil, err
		}
		drift = append(drift, d)
	}
	return drift, rows.Err()
}

type postgresTx struct {
	q querier
}

func (tx *postgresTx) LockAccounts(ctx context.Context, ids ...string) (map[string]*domain.Account, error) {
	out := make(map[string]*domain.Account, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := tx.q.Query(ctx,
		`SELECT id, points, verified, suspicious FROM accounts
		 WHERE id = ANY($1)
		 ORDER BY id
		 FOR UPDATE`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.Points, &a.Verified, &a.Suspicious); err != nil {
			return nil, err
		}
		out[a.ID] = &a
	}
	return out, rows.Err()
}

func (tx *postgresTx) UpdateAccountPoints(ctx context.Context, accountID string, points int64) error {
	tag, err := tx.q.Exec(ctx, `UPDATE accounts SET points = $2 WHERE id = $1`, accountID, points)
	if err != nil {
		return fmt.Errorf("account %s would reach %d: %w", accountID, points, mapPgError(err, nil, domain.ErrInsufficientFunds))
	}
	if tag.RowsAffected() == 0 {
		return accountNotFound(accountID)
	}
	return nil
}

func (tx *postgresTx) LockTransaction(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	return getTransaction(ctx, tx.q, transactionID, true)
}

func (tx *postgresTx) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	var spent *string
	if t.Spent != nil {
		v := t.Spent.StringFixed(2)
		spent = &v
	}
	if t.AppliedPromotionIDs == nil {
		t.AppliedPromotionIDs = []int64{}
	}
	err := tx.q.QueryRow(ctx,
		`INSERT INTO transactions
			(account_id, type, amount, spent, redeemed, related_id, promotion_ids, suspicious, remark, created_by)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at`,
		t.AccountID, string(t.Type), t.Amount, spent, t.Redeemed, t.RelatedID,
		t.AppliedPromotionIDs, t.Suspicious, t.Remark, t.CreatedBy,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", mapPgError(err, nil, nil))
	}
	return nil
}

func (tx *postgresTx) UpdateTransactionSuspicious(ctx context.Context, transactionID int64, suspicious bool) error {
	tag, err := tx.q.Exec(ctx, `UPDATE transactions SET suspicious = $2 WHERE id = $1`, transactionID, suspicious)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return transactionNotFound(transactionID)
	}
	return nil
}

func (tx *postgresTx) MarkRedemptionProcessed(ctx context.Context, processing domain.RedemptionProcessing, redeemed int64) error {
	tag, err := tx.q.Exec(ctx,
		`UPDATE transactions SET redeemed = $2, related_id = $3
		 WHERE id = $1 AND type = 'redemption' AND related_id IS NULL`,
		processing.TransactionID, redeemed, processing.ProcessorID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %d: %w", processing.TransactionID, domain.ErrAlreadyProcessed)
	}
	_, err = tx.q.Exec(ctx,
		`INSERT INTO redemption_processing (transaction_id, processor_id, idempotency_key)
		 VALUES ($1, $2, $3)`,
		processing.TransactionID, processing.ProcessorID, processing.IdempotencyKey,
	)
	if err != nil {
		return fmt.Errorf("record redemption processing: %w", mapPgError(err, domain.ErrAlreadyProcessed, nil))
	}
	return nil
}

func (tx *postgresTx) GetRedemptionProcessing(ctx context.Context, transactionID int64) (*domain.RedemptionProcessing, error) {
	var p domain.RedemptionProcessing
	err := tx.q.QueryRow(ctx,
		`SELECT transaction_id, processor_id, idempotency_key, processed_at
		 FROM redemption_processing WHERE transaction_id = $1`,
		transactionID,
	).Scan(&p.TransactionID, &p.ProcessorID, &p.IdempotencyKey, &p.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (tx *postgresTx) GetPromotions(ctx context.Context, ids []int64) (map[int64]*domain.Promotion, error) {
	return getPromotions(ctx, tx.q, ids)
}

func (tx *postgresTx) HasPromotionUsage(ctx context.Context, accountID string, promotionID int64) (bool, error) {
	var used bool
	err := tx.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM promotion_usages WHERE account_id = $1 AND promotion_id = $2)`,
		accountID, promotionID,
	).Scan(&used)
	return used, err
}

func (tx *postgresTx) InsertPromotionUsage(ctx context.Context, usage domain.PromotionUsage) error {
	_, err := tx.q.Exec(ctx,
		`INSERT INTO promotion_usages (account_id, promotion_id) VALUES ($1, $2)`,
		usage.AccountID, usage.PromotionID,
	)
	if err != nil {
		return fmt.Errorf("promotion %d for account %s: %w", usage.PromotionID, usage.AccountID, mapPgError(err, domain.ErrPromotionAlreadyUsed, nil))
	}
	return nil
}

func (tx *postgresTx) LockEvent(ctx context.Context, eventID int64) (*domain.Event, error) {
	return getEvent(ctx, tx.q, eventID, true)
}

func (tx *postgresTx) UpdateEventAwarded(ctx context.Context, eventID int64, pointsAwarded int64) error {
	tag, err := tx.q.Exec(ctx, `UPDATE events SET points_awarded = $2 WHERE id = $1`, eventID, pointsAwarded)
	if err != nil {
		return fmt.Errorf("event %d: %w", eventID, mapPgError(err, nil, domain.ErrBudgetExceeded))
	}
	if tag.RowsAffected() == 0 {
		return eventNotFound(eventID)
	}
	return nil
}

const transactionColumns = `id, account_id, type, amount, spent::text, redeemed, related_id,
	promotion_ids, suspicious, remark, created_by, created_at`

func getTransaction(ctx context.Context, q querier, transactionID int64, lock bool) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	t, err := scanTransaction(q.QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transactionNotFound(transactionID)
		}
		return nil, err
	}
	return t, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t     domain.Transaction
		typ   string
		spent *string
	)
	err := row.Scan(&t.ID, &t.AccountID, &typ, &t.Amount, &spent, &t.Redeemed, &t.RelatedID,
		&t.AppliedPromotionIDs, &t.Suspicious, &t.Remark, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Type = domain.TransactionType(typ)
	if t.Spent, err = parseDecimal(spent); err != nil {
		return nil, fmt.Errorf("transaction %d spent: %w", t.ID, err)
	}
	if t.AppliedPromotionIDs == nil {
		t.AppliedPromotionIDs = []int64{}
	}
	return &t, nil
}

func getPromotions(ctx context.Context, q querier, ids []int64) (map[int64]*domain.Promotion, error) {
	out := make(map[int64]*domain.Promotion, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx,
		`SELECT id, type, start_time, end_time, min_spending::text, rate::text, points
		 FROM promotions WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p                 domain.Promotion
			typ               string
			minSpending, rate *string
		)
		if err := rows.Scan(&p.ID, &typ, &p.StartTime, &p.EndTime, &minSpending, &rate, &p.Points); err != nil {
			return nil, err
		}
		p.Type = domain.PromotionType(typ)
		if p.MinSpending, err = parseDecimal(minSpending); err != nil {
			return nil, fmt.Errorf("promotion %d min_spending: %w", p.ID, err)
		}
		if p.Rate, err = parseDecimal(rate); err != nil {
			return nil, fmt.Errorf("promotion %d rate: %w", p.ID, err)
		}
		out[p.ID] = &p
	}
	return out, rows.Err()
}

func getEvent(ctx context.Context, q querier, eventID int64, lock bool) (*domain.Event, error) {
	query := `SELECT id, points, points_awarded FROM events WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var e domain.Event
	if err := q.QueryRow(ctx, query, eventID).Scan(&e.ID, &e.Points, &e.PointsAwarded); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eventNotFound(eventID)
		}
		return nil, err
	}
	rows, err := q.Query(ctx, `SELECT account_id FROM event_guests WHERE event_id = $1 ORDER BY account_id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	e.Guests = make([]string, 0)
	for rows.Next() {
		var guest string
		if err := rows.Scan(&guest); err != nil {
			return nil, err
		}
		e.Guests = append(e.Guests, guest)
	}
	return &e, rows.Err()
}

func parseDecimal(raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
