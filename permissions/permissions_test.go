package permissions_test

import (
	"testing"

	"f0oster/lineage/apperrors"
	"f0oster/lineage/permissions"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard(t *testing.T) {
	checker := permissions.NewChecker(permissions.DefaultPolicy())
	manager := uuid.New()

	// whitelisted actors pass regardless of role
	err := checker.Guard(permissions.CanCloseModule, permissions.Actor{UUID: manager, Role: "Lezer"}, manager)
	assert.NoError(t, err)

	// role grant
	err = checker.Guard(permissions.CanCloseModule, permissions.Actor{UUID: uuid.New(), Role: permissions.RoleAmbtelijkOpdrachtgever}, manager)
	assert.NoError(t, err)

	err = checker.Guard(permissions.CanCloseModule, permissions.Actor{UUID: uuid.New(), Role: permissions.RoleBehandelendAmbtenaar}, manager)
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
}

func TestGuardWhitelist(t *testing.T) {
	checker := permissions.NewChecker(permissions.DefaultPolicy())
	manager := uuid.New()

	assert.NoError(t, checker.GuardWhitelist(permissions.Actor{UUID: manager}, manager))
	assert.ErrorIs(t, checker.GuardWhitelist(permissions.Actor{UUID: uuid.New(), Role: permissions.RoleSuperuser}, manager), apperrors.ErrPermissionDenied)
	assert.ErrorIs(t, checker.GuardWhitelist(permissions.Actor{UUID: uuid.Nil}, uuid.Nil), apperrors.ErrPermissionDenied)
}

func TestParsePolicy(t *testing.T) {
	raw := []byte(`
roles:
  Redacteur:
    - can_patch_object_in_module
    - can_edit_module_object_context
`)
	policy, err := permissions.ParsePolicy(raw)
	require.NoError(t, err)
	assert.True(t, policy.Grants("Redacteur", permissions.CanPatchObjectInModule))
	assert.False(t, policy.Grants("Redacteur", permissions.CanCloseModule))
	assert.False(t, policy.Grants("Superuser", permissions.CanCloseModule))

	_, err = permissions.ParsePolicy([]byte("roles:\n  X:\n    - can_fly\n"))
	assert.Error(t, err)
}
