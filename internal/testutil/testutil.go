// Package testutil provides test helpers for vaultsearch tests.
//
// The package is organized into focused files:
//   - assert.go: assertion helpers (MustNoErr, AssertStrings, etc.)
//   - store_helpers.go: database test setup (NewTestStore, SeedFolders)
//   - builders.go: entity builders (NewMail, NewContact)
package testutil
