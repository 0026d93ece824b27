// Package testing allows for easy setup of a temporary bonding database for
// unit tests.
package testing

import (
	"testing"

	"github.com/bytewizard42i/selectConnect-app-pro/bonding/db/kv"
)

// SetupDB instantiates and returns a bonding database backed by a temporary
// directory, torn down when the test finishes.
func SetupDB(t testing.TB) *kv.Store {
	store, err := kv.NewKVStore(t.TempDir(), &kv.Config{})
	if err != nil {
		t.Fatalf("Failed to instantiate DB: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("Failed to close database: %v", err)
		}
	})
	return store
}
