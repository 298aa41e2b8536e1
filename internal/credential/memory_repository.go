package credential

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu          sync.RWMutex
	credentials map[string]Credential

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewMemoryRepository builds an in-memory credential store for testing.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		credentials: make(map[string]Credential),
		locks:       make(map[string]*sync.Mutex),
	}
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.credentials[id]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return c, nil
}

func (r *memoryRepository) FindByLookupPrefix(_ context.Context, prefix string) ([]Credential, error) {
	return r.filter(func(c Credential) bool { return c.LookupPrefix == prefix }), nil
}

func (r *memoryRepository) ListByPrincipal(_ context.Context, principalID string) ([]Credential, error) {
	out := r.filter(func(c Credential) bool { return c.PrincipalID == principalID })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) filter(keep func(Credential) bool) []Credential {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Credential
	for _, c := range r.credentials {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func (r *memoryRepository) principalLock(principalID string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	m, ok := r.locks[principalID]
	if !ok {
		m = &sync.Mutex{}
		r.locks[principalID] = m
	}
	return m
}

func (r *memoryRepository) WithPrincipal(ctx context.Context, principalID string, fn func(tx Tx) error) error {
	lock := r.principalLock(principalID)
	lock.Lock()
	defer lock.Unlock()

	tx := &memoryTx{repo: r, deactivated: make(map[string]time.Time)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range tx.inserted {
		for _, existing := range r.credentials {
			if existing.Hash == c.Hash {
				return ErrDuplicateHash
			}
		}
	}
	for id, at := range tx.deactivated {
		c := r.credentials[id]
		c.Active = false
		c.UpdatedAt = at
		r.credentials[id] = c
	}
	for _, c := range tx.inserted {
		r.credentials[c.ID] = c
	}
	return nil
}

type memoryTx struct {
	repo        *memoryRepository
	inserted    []Credential
	deactivated map[string]time.Time
}

func (t *memoryTx) CountActive(_ context.Context, principalID string, now time.Time) (int, error) {
	n := 0
	for _, c := range t.repo.filter(func(c Credential) bool { return c.PrincipalID == principalID }) {
		if _, gone := t.deactivated[c.ID]; gone {
			continue
		}
		if c.Active && !c.Expired(now) {
			n++
		}
	}
	for _, c := range t.inserted {
		if c.PrincipalID == principalID && c.Active && !c.Expired(now) {
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) Lock(ctx context.Context, id string) (Credential, error) {
	c, err := t.repo.FindByID(ctx, id)
	if err != nil {
		return Credential{}, err
	}
	if at, gone := t.deactivated[id]; gone {
		c.Active = false
		c.UpdatedAt = at
	}
	return c, nil
}

func (t *memoryTx) Insert(_ context.Context, c Credential) error {
	t.inserted = append(t.inserted, c)
	return nil
}

func (t *memoryTx) Deactivate(ctx context.Context, id string, at time.Time) error {
	if _, err := t.repo.FindByID(ctx, id); err != nil {
		return err
	}
	t.deactivated[id] = at
	return nil
}
