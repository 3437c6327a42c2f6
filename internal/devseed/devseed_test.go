package devseed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/catalog-admin/internal/domain/auth"
	mockauth "github.com/target/catalog-admin/internal/mocks/auth"
	"github.com/target/catalog-admin/internal/service"
)

func TestRun_IsIdempotent(t *testing.T) {
	repo := mockauth.NewMemoryAdminDirectory()
	svc, err := service.NewAdminUserService(service.AdminUserServiceOptions{
		Repo:      repo,
		Passwords: &mockauth.PlainHasher{},
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, Run(ctx, svc, DefaultAccounts(), nil))
	require.NoError(t, Run(ctx, svc, DefaultAccounts(), nil))

	accounts, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "admin@example.com", accounts[0].Email)
	assert.Equal(t, domainauth.RoleAdmin, accounts[0].Role)
	assert.Equal(t, domainauth.RoleUser, accounts[1].Role)
}

func TestRun_CountsFailures(t *testing.T) {
	svc, err := service.NewAdminUserService(service.AdminUserServiceOptions{
		Repo:      mockauth.NewMemoryAdminDirectory(),
		Passwords: &mockauth.PlainHasher{},
	})
	require.NoError(t, err)

	err = Run(context.Background(), svc, []Account{
		{Email: "guest@example.com", Password: "pw", Role: domainauth.RoleGuest},
		{Email: "ok@example.com", Password: "pw"},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 seed errors")
}
