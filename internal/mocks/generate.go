// Package mocks provides mock implementations of the auth ports.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockSessionStore(ctrl)
//	store.EXPECT().Delete(gomock.Any(), "token").Return(nil)
package mocks

// Generate mock for SessionStore interface from internal/ports package.
// This creates MockSessionStore with methods for all SessionStore interface methods:
// Save, Get, Update, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=session_store_mock.go github.com/target/catalog-admin/internal/ports SessionStore

// Generate mock for SessionSweeper interface from internal/ports package.
// This creates MockSessionSweeper with methods for all SessionSweeper interface methods:
// DeleteStale, DeleteByAdmin
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=session_sweeper_mock.go github.com/target/catalog-admin/internal/ports SessionSweeper
