package testsupport

import (
	"testing"

	"songpack/internal/config"
	"songpack/internal/ledger"
)

// MustOpenLedger opens the ledger named by cfg and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
