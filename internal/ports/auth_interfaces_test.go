package ports_test

import (
	"testing"

	"github.com/target/catalog-admin/internal/adapters/passwords"
	"github.com/target/catalog-admin/internal/data"
	mocks "github.com/target/catalog-admin/internal/mocks/auth"
	"github.com/target/catalog-admin/internal/ports"
)

// This test only verifies that our mocks and adapters conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.AuthProvider = (*mocks.MockAuthProvider)(nil)
	var _ ports.SessionStore = (*mocks.MemorySessionStore)(nil)
	var _ ports.RoleMapper = (*mocks.StaticRoleMapper)(nil)
	var _ ports.AdminDirectory = (*mocks.MemoryAdminDirectory)(nil)
	var _ ports.SessionStore = (*data.SessionRepo)(nil)
	var _ ports.SessionSweeper = (*data.SessionRepo)(nil)
	var _ ports.AdminDirectory = (*data.AdminUserRepo)(nil)
	var _ ports.AdminAccountRepository = (*data.AdminUserRepo)(nil)
	var _ ports.PasswordHasher = (*passwords.Hasher)(nil)
}
