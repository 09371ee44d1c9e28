package testsupport

import (
	"context"
	"testing"

	"vibedispatch/internal/config"
	"vibedispatch/internal/ledger"
)

// MustOpenLedger opens a ledger.Store for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedAssignment records an assignment for tests using the provided store.
func SeedAssignment(t testing.TB, store *ledger.Store, a ledger.Assignment) {
	t.Helper()

	if err := store.SaveAssignment(context.Background(), a); err != nil {
		t.Fatalf("store.SaveAssignment: %v", err)
	}
}
