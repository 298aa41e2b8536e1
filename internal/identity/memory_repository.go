package identity

import (
	"context"
	"sync"

	"github.com/congo-pay/walletd/internal/ledger"
)

type memoryRepository struct {
	mu         sync.RWMutex
	principals map[string]Principal
	byExternal map[string]string
	accounts   ledger.Store
}

// NewMemoryRepository builds an in-memory principal store for testing.
// Accounts are created in accounts.
func NewMemoryRepository(accounts ledger.Store) Repository {
	return &memoryRepository{
		principals: make(map[string]Principal),
		byExternal: make(map[string]string),
		accounts:   accounts,
	}
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.principals[id]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryRepository) FindByExternalID(_ context.Context, externalID string) (Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byExternal[externalID]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return r.principals[id], nil
}

func (r *memoryRepository) CreateWithAccount(ctx context.Context, p Principal, account ledger.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byExternal[p.ExternalID]; exists {
		return ErrExists
	}
	if err := r.accounts.CreateAccount(ctx, account); err != nil {
		return err
	}
	r.principals[p.ID] = p
	r.byExternal[p.ExternalID] = p.ID
	return nil
}

func (r *memoryRepository) UpdateProfile(_ context.Context, p Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.principals[p.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Email = p.Email
	existing.Name = p.Name
	existing.Picture = p.Picture
	existing.UpdatedAt = p.UpdatedAt
	r.principals[p.ID] = existing
	return nil
}
