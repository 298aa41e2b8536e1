package reference

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGeneratorPrefixes(t *testing.T) {
	var g Generator
	tests := []struct {
		name   string
		newFn  func() (string, error)
		prefix Prefix
	}{
		{"deposit", g.Deposit, PrefixDeposit},
		{"transfer", g.Transfer, PrefixTransfer},
		{"group", g.Group, PrefixGroup},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := tt.newFn()
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			if !HasPrefix(ref, tt.prefix) {
				t.Fatalf("expected prefix %q, got %q", tt.prefix, ref)
			}
			got, err := Parse(ref)
			if err != nil {
				t.Fatalf("parse %q: %v", ref, err)
			}
			if got != tt.prefix {
				t.Fatalf("expected parsed prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestGeneratorUniqueAcrossKindsAndGoroutines(t *testing.T) {
	var g Generator
	const workers = 8
	const perWorker = 500

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*perWorker*2)
		wg   sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker*2)
			for j := 0; j < perWorker; j++ {
				dep, err := g.Deposit()
				if err != nil {
					t.Errorf("deposit: %v", err)
					return
				}
				xfer, err := g.Transfer()
				if err != nil {
					t.Errorf("transfer: %v", err)
					return
				}
				local = append(local, dep, xfer)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, ref := range local {
				if _, dup := seen[ref]; dup {
					t.Errorf("duplicate reference %s", ref)
				}
				seen[ref] = struct{}{}
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker*2 {
		t.Fatalf("expected %d unique references, got %d", workers*perWorker*2, len(seen))
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("dep_not-a-typeid"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestAccountNumber(t *testing.T) {
	var g Generator
	now := time.UnixMilli(1735689600123)
	num, err := g.AccountNumber(now)
	if err != nil {
		t.Fatalf("account number: %v", err)
	}
	if len(num) != 16 {
		t.Fatalf("expected 16 digits, got %q", num)
	}
	if !strings.HasPrefix(num, "1735689600123") {
		t.Fatalf("expected millisecond prefix, got %q", num)
	}
	for _, r := range num {
		if r < '0' || r > '9' {
			t.Fatalf("non-digit in %q", num)
		}
	}
}
