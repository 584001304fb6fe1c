package access

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/compta-pme/backend/models"
	"github.com/upb/compta-pme/backend/repositories/memory"
	"github.com/upb/compta-pme/backend/services"
	"go.uber.org/zap"
)

func TestPolicy_RequireRole(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	memberships := store.Repositories().Memberships
	policy := NewPolicy(memberships, zap.NewNop())

	tenant := uuid.New()
	owner := models.NewMembership(uuid.New(), tenant, models.MembershipTenantOwner)
	collab := models.NewMembership(uuid.New(), tenant, models.MembershipCollaborateur)
	require.NoError(t, memberships.Create(ctx, owner))
	require.NoError(t, memberships.Create(ctx, collab))

	tests := []struct {
		name    string
		userID  uuid.UUID
		allowed []models.MembershipRole
		wantErr error
	}{
		{"owner passes manager check", owner.UserID, models.TeamManagerRoles, nil},
		{"collaborator fails manager check", collab.UserID, models.TeamManagerRoles, services.ErrAccessDenied},
		{"collaborator passes membership check", collab.UserID, nil, nil},
		{"stranger is denied", uuid.New(), nil, services.ErrAccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := policy.RequireRole(ctx, tt.userID, tenant, tt.allowed...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, m)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.userID, m.UserID)
		})
	}

	t.Run("other tenant is denied", func(t *testing.T) {
		_, err := policy.RequireRole(ctx, owner.UserID, uuid.New())
		assert.ErrorIs(t, err, services.ErrAccessDenied)
	})
}

func TestCheckTarget(t *testing.T) {
	tenant := uuid.New()
	admin := models.NewMembership(uuid.New(), tenant, models.MembershipAdminCabinet)
	owner := models.NewMembership(uuid.New(), tenant, models.MembershipTenantOwner)
	member := models.NewMembership(uuid.New(), tenant, models.MembershipComptablePME)

	assert.ErrorIs(t, CheckTarget(admin, owner, true), services.ErrOwnerProtected)
	assert.ErrorIs(t, CheckTarget(admin, owner, false), services.ErrOwnerProtected)
	assert.ErrorIs(t, CheckTarget(owner, owner, true), services.ErrOwnerProtected)
	assert.ErrorIs(t, CheckTarget(admin, admin, true), services.ErrSelfRemovalDenied)
	assert.NoError(t, CheckTarget(admin, admin, false))
	assert.NoError(t, CheckTarget(admin, member, true))
}
