package ledger

import "time"

// SeedBalance is a test helper that sets the balance of an account when using
// the in-memory store. It bypasses the engine, so no entry is recorded.
func SeedBalance(s Store, accountID string, amount int64) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		acct, exists := mem.accounts[accountID]
		if !exists {
			return
		}
		acct.Balance = amount
		acct.UpdatedAt = time.Now().UTC()
		mem.accounts[accountID] = acct
	}
}
