package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// keyedMutex hands out one mutex per key. Row locks in the in-memory store
// are entries in this map, held for the lifetime of a transaction.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

type storedEntry struct {
	Entry
	seq int64
}

type inMemoryStore struct {
	mu          sync.RWMutex
	accounts    map[string]Account
	byPrincipal map[string]string
	byNumber    map[string]string
	entries     map[string]storedEntry
	seq         int64

	rows keyedMutex
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit
// tests and local development. It follows the same locking discipline as the
// Postgres store: row locks are taken in ascending id order and held until
// the enclosing transaction finishes.
func NewInMemory() Store {
	return &inMemoryStore{
		accounts:    make(map[string]Account),
		byPrincipal: make(map[string]string),
		byNumber:    make(map[string]string),
		entries:     make(map[string]storedEntry),
	}
}

func (s *inMemoryStore) CreateAccount(_ context.Context, account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[account.ID]; exists {
		return ErrDuplicateReference
	}
	if _, exists := s.byPrincipal[account.PrincipalID]; exists {
		return ErrDuplicateReference
	}
	if _, exists := s.byNumber[account.Number]; exists {
		return ErrDuplicateReference
	}
	s.accounts[account.ID] = account
	s.byPrincipal[account.PrincipalID] = account.ID
	s.byNumber[account.Number] = account.ID
	return nil
}

func (s *inMemoryStore) AccountByPrincipal(_ context.Context, principalID string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPrincipal[principalID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return s.accounts[id], nil
}

func (s *inMemoryStore) AccountByNumber(_ context.Context, number string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byNumber[number]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return s.accounts[id], nil
}

func (s *inMemoryStore) InsertEntry(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(entry)
}

func (s *inMemoryStore) insertLocked(entry Entry) error {
	if _, exists := s.entries[entry.Reference]; exists {
		return ErrDuplicateReference
	}
	if _, exists := s.accounts[entry.AccountID]; !exists {
		return ErrAccountNotFound
	}
	s.seq++
	s.entries[entry.Reference] = storedEntry{Entry: entry, seq: s.seq}
	return nil
}

func (s *inMemoryStore) EntryByReference(_ context.Context, reference string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[reference]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return e.Entry, nil
}

func (s *inMemoryStore) EntriesByAccount(_ context.Context, accountID string) ([]Entry, error) {
	s.mu.RLock()
	matched := make([]storedEntry, 0)
	for _, e := range s.entries {
		if e.AccountID == accountID {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].seq > matched[j].seq
	})
	out := make([]Entry, len(matched))
	for i, e := range matched {
		out[i] = e.Entry
	}
	return out, nil
}

func (s *inMemoryStore) UpdateAuthorization(_ context.Context, reference, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[reference]
	if !ok {
		return ErrEntryNotFound
	}
	e.AuthorizationURL = url
	e.UpdatedAt = time.Now().UTC()
	s.entries[reference] = e
	return nil
}

func (s *inMemoryStore) DiscardPending(_ context.Context, reference string) error {
	row := s.rows.get(entryLockKey(reference))
	row.Lock()
	defer row.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[reference]
	if !ok || e.Status != StatusPending {
		return ErrNotPending
	}
	delete(s.entries, reference)
	return nil
}

func (s *inMemoryStore) StalePending(_ context.Context, kind Kind, before time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	matched := make([]storedEntry, 0)
	for _, e := range s.entries {
		if e.Kind == kind && e.Status == StatusPending && e.CreatedAt.Before(before) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	refs := make([]string, len(matched))
	for i, e := range matched {
		refs[i] = e.Reference
	}
	return refs, nil
}

func (s *inMemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memoryTx{
		store:    s,
		held:     make(map[string]*sync.Mutex),
		balances: make(map[string]stagedBalance),
		settles:  make(map[string]stagedSettle),
	}
	defer tx.release()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	// A cancelled caller must never observe a half-applied unit, so the
	// context is checked once more right before the staged writes land.
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.apply(tx)
}

func (s *inMemoryStore) apply(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range tx.inserts {
		if _, exists := s.entries[e.Reference]; exists {
			return ErrDuplicateReference
		}
	}
	for id, b := range tx.balances {
		acct := s.accounts[id]
		acct.Balance = b.balance
		acct.UpdatedAt = b.at
		s.accounts[id] = acct
	}
	for ref, st := range tx.settles {
		e, ok := s.entries[ref]
		if !ok {
			continue
		}
		e.Status = st.status
		e.SettledAt = st.settledAt
		e.UpdatedAt = st.at
		s.entries[ref] = e
	}
	for _, e := range tx.inserts {
		if st, ok := tx.settles[e.Reference]; ok {
			e.Status = st.status
			e.SettledAt = st.settledAt
			e.UpdatedAt = st.at
		}
		if err := s.insertLocked(e); err != nil {
			return err
		}
	}
	return nil
}

type stagedBalance struct {
	balance int64
	at      time.Time
}

type stagedSettle struct {
	status    Status
	settledAt *time.Time
	at        time.Time
}

type memoryTx struct {
	store    *inMemoryStore
	held     map[string]*sync.Mutex
	order    []string
	balances map[string]stagedBalance
	settles  map[string]stagedSettle
	inserts  []Entry
}

func entryLockKey(reference string) string { return "entry:" + reference }
func accountLockKey(id string) string      { return "account:" + id }

func (tx *memoryTx) lock(key string) {
	if _, ok := tx.held[key]; ok {
		return
	}
	m := tx.store.rows.get(key)
	m.Lock()
	tx.held[key] = m
	tx.order = append(tx.order, key)
}

func (tx *memoryTx) release() {
	for i := len(tx.order) - 1; i >= 0; i-- {
		tx.held[tx.order[i]].Unlock()
	}
	tx.held = nil
	tx.order = nil
}

func (tx *memoryTx) LockEntry(_ context.Context, reference string) (Entry, error) {
	tx.lock(entryLockKey(reference))
	e, err := tx.store.EntryByReference(context.Background(), reference)
	if err != nil {
		return Entry{}, err
	}
	if st, ok := tx.settles[reference]; ok {
		e.Status = st.status
		e.SettledAt = st.settledAt
		e.UpdatedAt = st.at
	}
	return e, nil
}

func (tx *memoryTx) LockAccounts(_ context.Context, ids ...string) (map[string]Account, error) {
	out := make(map[string]Account, len(ids))
	for _, id := range lockOrder(ids) {
		tx.lock(accountLockKey(id))
		tx.store.mu.RLock()
		acct, ok := tx.store.accounts[id]
		tx.store.mu.RUnlock()
		if !ok {
			return nil, ErrAccountNotFound
		}
		if b, ok := tx.balances[id]; ok {
			acct.Balance = b.balance
			acct.UpdatedAt = b.at
		}
		out[id] = acct
	}
	return out, nil
}

func (tx *memoryTx) SetBalance(_ context.Context, accountID string, balance int64, at time.Time) error {
	if _, ok := tx.held[accountLockKey(accountID)]; !ok {
		return fmt.Errorf("ledger: account %s is not locked", accountID)
	}
	if balance < 0 {
		return fmt.Errorf("ledger: account %s balance would become negative", accountID)
	}
	tx.balances[accountID] = stagedBalance{balance: balance, at: at}
	return nil
}

func (tx *memoryTx) InsertEntry(_ context.Context, entry Entry) error {
	if _, err := tx.store.EntryByReference(context.Background(), entry.Reference); err == nil {
		return ErrDuplicateReference
	}
	for _, e := range tx.inserts {
		if e.Reference == entry.Reference {
			return ErrDuplicateReference
		}
	}
	tx.inserts = append(tx.inserts, entry)
	return nil
}

func (tx *memoryTx) SettleEntry(_ context.Context, reference string, status Status, settledAt *time.Time, at time.Time) error {
	if _, ok := tx.held[entryLockKey(reference)]; !ok {
		return fmt.Errorf("ledger: entry %s is not locked", reference)
	}
	current, err := tx.LockEntry(context.Background(), reference)
	if err != nil {
		return err
	}
	if current.Status != StatusPending {
		return ErrNotPending
	}
	tx.settles[reference] = stagedSettle{status: status, settledAt: settledAt, at: at}
	return nil
}
