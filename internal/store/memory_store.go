package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/campusrewards/ledger-service/internal/domain"
)

type usageKey struct {
	accountID   string
	promotionID int64
}

// MemoryStore keeps the ledger in process. One mutex is held for the whole unit
// of work, so units of work are fully serialized. Writes made inside WithinTx
// are staged and only merged when fn returns nil.
type MemoryStore struct {
	mu           sync.Mutex
	now          func() time.Time
	accounts     map[string]domain.Account
	transactions []domain.Transaction
	promotions   map[int64]domain.Promotion
	usages       map[usageKey]domain.PromotionUsage
	events       map[int64]domain.Event
	processing   map[int64]domain.RedemptionProcessing
}

// NewMemoryStore creates an empty store. A nil clock defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:        now,
		accounts:   make(map[string]domain.Account),
		promotions: make(map[int64]domain.Promotion),
		usages:     make(map[usageKey]domain.PromotionUsage),
		events:     make(map[int64]domain.Event),
		processing: make(map[int64]domain.RedemptionProcessing),
	}
}

// PutAccount seeds or replaces an account. Identity owns accounts, so this is the
// memory equivalent of the identity service's writes.
func (s *MemoryStore) PutAccount(account domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = account
}

// PutPromotion seeds or replaces a promotion.
func (s *MemoryStore) PutPromotion(promotion domain.Promotion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promotions[promotion.ID] = clonePromotion(promotion)
}

// PutEvent seeds or replaces an event together with its guest list.
func (s *MemoryStore) PutEvent(event domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.Guests = append([]string(nil), event.Guests...)
	s.events[event.ID] = event
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store:      s,
		accounts:   make(map[string]domain.Account),
		updated:    make(map[int64]domain.Transaction),
		usages:     make(map[usageKey]domain.PromotionUsage),
		events:     make(map[int64]domain.Event),
		processing: make(map[int64]domain.RedemptionProcessing),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, accountID string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, accountNotFound(accountID)
	}
	return &account, nil
}

func (s *MemoryStore) GetTransaction(_ context.Context, transactionID int64) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactionAt(transactionID)
	if !ok {
		return nil, transactionNotFound(transactionID)
	}
	out := cloneTransaction(t)
	return &out, nil
}

// ListAccountTransactions returns newest first, matching the Postgres ordering.
func (s *MemoryStore) ListAccountTransactions(_ context.Context, accountID string, limit int, offset int) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; !ok {
		return nil, accountNotFound(accountID)
	}
	out := make([]domain.Transaction, 0)
	skipped := 0
	for i := len(s.transactions) - 1; i >= 0; i-- {
		t := s.transactions[i]
		if t.AccountID != accountID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, cloneTransaction(t))
	}
	return out, nil
}

func (s *MemoryStore) GetPromotion(_ context.Context, promotionID int64) (*domain.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.promotions[promotionID]
	if !ok {
		return nil, promotionNotFound(promotionID)
	}
	out := clonePromotion(p)
	return &out, nil
}

func (s *MemoryStore) GetEvent(_ context.Context, eventID int64) (*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return nil, eventNotFound(eventID)
	}
	e.Guests = append([]string(nil), e.Guests...)
	return &e, nil
}

func (s *MemoryStore) FindBalanceDrift(_ context.Context) ([]BalanceDrift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expected := make(map[string]int64, len(s.accounts))
	for i := range s.transactions {
		t := &s.transactions[i]
		expected[t.AccountID] += t.BalanceEffect()
	}
	drift := make([]BalanceDrift, 0)
	for id, account := range s.accounts {
		if account.Points != expected[id] {
			drift = append(drift, BalanceDrift{AccountID: id, Points: account.Points, Expected: expected[id]})
		}
	}
	sort.Slice(drift, func(i, j int) bool { return drift[i].AccountID < drift[j].AccountID })
	return drift, nil
}

func (s *MemoryStore) transactionAt(id int64) (domain.Transaction, bool) {
	if id < 1 || id > int64(len(s.transactions)) {
		return domain.Transaction{}, false
	}
	return s.transactions[id-1], true
}

// memoryTx stages every write. Reads consult the staged state first.
type memoryTx struct {
	store      *MemoryStore
	accounts   map[string]domain.Account
	inserted   []domain.Transaction
	updated    map[int64]domain.Transaction
	usages     map[usageKey]domain.PromotionUsage
	events     map[int64]domain.Event
	processing map[int64]domain.RedemptionProcessing
}

func (tx *memoryTx) commit() {
	s := tx.store
	for id, account := range tx.accounts {
		s.accounts[id] = account
	}
	for id, t := range tx.updated {
		s.transactions[id-1] = t
	}
	s.transactions = append(s.transactions, tx.inserted...)
	for k, u := range tx.usages {
		s.usages[k] = u
	}
	for id, e := range tx.events {
		s.events[id] = e
	}
	for id, p := range tx.processing {
		s.processing[id] = p
	}
}

func (tx *memoryTx) account(id string) (domain.Account, bool) {
	if a, ok := tx.accounts[id]; ok {
		return a, true
	}
	a, ok := tx.store.accounts[id]
	return a, ok
}

func (tx *memoryTx) transaction(id int64) (domain.Transaction, bool) {
	if t, ok := tx.updated[id]; ok {
		return t, true
	}
	base := int64(len(tx.store.transactions))
	if id > base && id <= base+int64(len(tx.inserted)) {
		return tx.inserted[id-base-1], true
	}
	return tx.store.transactionAt(id)
}

func (tx *memoryTx) LockAccounts(_ context.Context, ids ...string) (map[string]*domain.Account, error) {
	out := make(map[string]*domain.Account, len(ids))
	for _, id := range ids {
		if a, ok := tx.account(id); ok {
			account := a
			out[id] = &account
		}
	}
	return out, nil
}

func (tx *memoryTx) UpdateAccountPoints(_ context.Context, accountID string, points int64) error {
	a, ok := tx.account(accountID)
	if !ok {
		return accountNotFound(accountID)
	}
	if points < 0 {
		return fmt.Errorf("%w: account %s would reach %d", domain.ErrInsufficientFunds, accountID, points)
	}
	a.Points = points
	tx.accounts[accountID] = a
	return nil
}

func (tx *memoryTx) LockTransaction(_ context.Context, transactionID int64) (*domain.Transaction, error) {
	t, ok := tx.transaction(transactionID)
	if !ok {
		return nil, transactionNotFound(transactionID)
	}
	out := cloneTransaction(t)
	return &out, nil
}

func (tx *memoryTx) InsertTransaction(_ context.Context, t *domain.Transaction) error {
	if _, ok := tx.account(t.AccountID); !ok {
		return accountNotFound(t.AccountID)
	}
	t.ID = int64(len(tx.store.transactions)+len(tx.inserted)) + 1
	if t.CreatedAt.IsZero() {
		t.CreatedAt = tx.store.now().UTC()
	}
	if t.AppliedPromotionIDs == nil {
		t.AppliedPromotionIDs = []int64{}
	}
	tx.inserted = append(tx.inserted, cloneTransaction(*t))
	return nil
}

func (tx *memoryTx) put(t domain.Transaction) {
	base := int64(len(tx.store.transactions))
	if t.ID > base {
		tx.inserted[t.ID-base-1] = t
		return
	}
	tx.updated[t.ID] = t
}

func (tx *memoryTx) UpdateTransactionSuspicious(_ context.Context, transactionID int64, suspicious bool) error {
	t, ok := tx.transaction(transactionID)
	if !ok {
		return transactionNotFound(transactionID)
	}
	t = cloneTransaction(t)
	t.Suspicious = suspicious
	tx.put(t)
	return nil
}

func (tx *memoryTx) MarkRedemptionProcessed(_ context.Context, processing domain.RedemptionProcessing, redeemed int64) error {
	t, ok := tx.transaction(processing.TransactionID)
	if !ok {
		return transactionNotFound(processing.TransactionID)
	}
	if t.Processed() {
		return fmt.Errorf("transaction %d: %w", t.ID, domain.ErrAlreadyProcessed)
	}
	t = cloneTransaction(t)
	t.Redeemed = &redeemed
	t.RelatedID = domain.StringRef(processing.ProcessorID)
	tx.put(t)
	if processing.ProcessedAt.IsZero() {
		processing.ProcessedAt = tx.store.now().UTC()
	}
	tx.processing[processing.TransactionID] = processing
	return nil
}

func (tx *memoryTx) GetRedemptionProcessing(_ context.Context, transactionID int64) (*domain.RedemptionProcessing, error) {
	if p, ok := tx.processing[transactionID]; ok {
		return &p, nil
	}
	if p, ok := tx.store.processing[transactionID]; ok {
		return &p, nil
	}
	return nil, nil
}

func (tx *memoryTx) GetPromotions(_ context.Context, ids []int64) (map[int64]*domain.Promotion, error) {
	out := make(map[int64]*domain.Promotion, len(ids))
	for _, id := range ids {
		if p, ok := tx.store.promotions[id]; ok {
			promotion := clonePromotion(p)
			out[id] = &promotion
		}
	}
	return out, nil
}

func (tx *memoryTx) HasPromotionUsage(_ context.Context, accountID string, promotionID int64) (bool, error) {
	key := usageKey{accountID: accountID, promotionID: promotionID}
	if _, ok := tx.usages[key]; ok {
		return true, nil
	}
	_, ok := tx.store.usages[key]
	return ok, nil
}

func (tx *memoryTx) InsertPromotionUsage(ctx context.Context, usage domain.PromotionUsage) error {
	used, _ := tx.HasPromotionUsage(ctx, usage.AccountID, usage.PromotionID)
	if used {
		return fmt.Errorf("promotion %d for account %s: %w", usage.PromotionID, usage.AccountID, domain.ErrPromotionAlreadyUsed)
	}
	if usage.UsedAt.IsZero() {
		usage.UsedAt = tx.store.now().UTC()
	}
	tx.usages[usageKey{accountID: usage.AccountID, promotionID: usage.PromotionID}] = usage
	return nil
}

func (tx *memoryTx) event(id int64) (domain.Event, bool) {
	if e, ok := tx.events[id]; ok {
		return e, true
	}
	e, ok := tx.store.events[id]
	return e, ok
}

func (tx *memoryTx) LockEvent(_ context.Context, eventID int64) (*domain.Event, error) {
	e, ok := tx.event(eventID)
	if !ok {
		return nil, eventNotFound(eventID)
	}
	e.Guests = append([]string(nil), e.Guests...)
	return &e, nil
}

func (tx *memoryTx) UpdateEventAwarded(_ context.Context, eventID int64, pointsAwarded int64) error {
	e, ok := tx.event(eventID)
	if !ok {
		return eventNotFound(eventID)
	}
	if pointsAwarded < 0 || pointsAwarded > e.Points {
		return fmt.Errorf("event %d: %w", eventID, domain.ErrBudgetExceeded)
	}
	e.PointsAwarded = pointsAwarded
	tx.events[eventID] = e
	return nil
}

func cloneTransaction(t domain.Transaction) domain.Transaction {
	out := t
	if t.Spent != nil {
		v := *t.Spent
		out.Spent = &v
	}
	if t.Redeemed != nil {
		v := *t.Redeemed
		out.Redeemed = &v
	}
	if t.RelatedID != nil {
		v := *t.RelatedID
		out.RelatedID = &v
	}
	out.AppliedPromotionIDs = append([]int64{}, t.AppliedPromotionIDs...)
	return out
}

func clonePromotion(p domain.Promotion) domain.Promotion {
	out := p
	if p.MinSpending != nil {
		v := *p.MinSpending
		out.MinSpending = &v
	}
	if p.Rate != nil {
		v := *p.Rate
		out.Rate = &v
	}
	if p.Points != nil {
		v := *p.Points
		out.Points = &v
	}
	return out
}
