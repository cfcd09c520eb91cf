// Package testutil holds shared helpers for package tests.
package testutil

import (
	"testing"

	"github.com/tdnguyen/mailsift/internal/store/sqlite"
)

// NewTestStore creates an in-memory sqlite record store with all
// migrations applied. It automatically closes the store when the test
// completes.
func NewTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}
