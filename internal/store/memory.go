package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/cardledger/internal/domain"
)

// MemoryStore keeps accounts and transactions in process memory. Writes made
// through a Tx are staged and applied under one lock at commit.
type MemoryStore struct {
	mu           sync.RWMutex
	nextID       int64
	accounts     map[int64]domain.Account
	transactions []domain.Transaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[int64]domain.Account)}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx := &memTx{store: s, staged: make(map[int64]stagedAccount)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, st := range tx.staged {
		cur, ok := s.accounts[id]
		if !ok {
			return ErrAccountNotFound
		}
		if cur.Version != st.baseVersion {
			return ErrConflict
		}
	}
	for id, st := range tx.staged {
		s.accounts[id] = st.account
	}
	s.transactions = append(s.transactions, tx.created...)
	return nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &a, nil
}

func (s *MemoryStore) CreateAccount(ctx context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	a.ID = s.nextID
	a.Version = 1
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.accounts[a.ID] = *a
	return nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		t := s.transactions[i]
		if t.FromAccountID == accountID || t.ToAccountID == accountID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListExpiring(ctx context.Context, day time.Time) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for id, a := range s.accounts {
		if a.Status == domain.StatusActive && a.IsExpired(day) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) ListBlockRequested(ctx context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Account
	for _, a := range s.accounts {
		if a.BlockRequested {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListAccounts(ctx context.Context, q AccountQuery) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Account
	for _, a := range s.accounts {
		if q.matches(&a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if q.Offset >= len(out) {
		return nil, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) TransactionStats(ctx context.Context, from, to time.Time, ownerID int64) (domain.TransactionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := domain.TransactionStats{Total: decimal.Zero}
	for _, t := range s.transactions {
		if t.CreatedAt.Before(from) || !t.CreatedAt.Before(to) {
			continue
		}
		if ownerID != 0 && s.accounts[t.FromAccountID].OwnerID != ownerID && s.accounts[t.ToAccountID].OwnerID != ownerID {
			continue
		}
		st.Count++
		if t.Status == domain.TxSuccess {
			st.Successful++
		}
		st.Total = st.Total.Add(t.Amount)
	}
	return st, nil
}

type stagedAccount struct {
	account     domain.Account
	baseVersion int64
}

type memTx struct {
	store   *MemoryStore
	staged  map[int64]stagedAccount
	created []domain.Transaction
}

func (t *memTx) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	if st, ok := t.staged[id]; ok {
		a := st.account
		return &a, nil
	}
	return t.store.GetAccount(ctx, id)
}

func (t *memTx) UpdateAccount(ctx context.Context, a *domain.Account) error {
	base := a.Version
	if st, ok := t.staged[a.ID]; ok {
		if st.account.Version != base {
			return ErrConflict
		}
		base = st.baseVersion
	} else {
		cur, err := t.store.GetAccount(ctx, a.ID)
		if err != nil {
			return err
		}
		if cur.Version != a.Version {
			return ErrConflict
		}
	}
	a.Version++
	t.staged[a.ID] = stagedAccount{account: *a, baseVersion: base}
	return nil
}

func (t *memTx) CreateTransaction(ctx context.Context, tr *domain.Transaction) error {
	t.created = append(t.created, *tr)
	return nil
}
