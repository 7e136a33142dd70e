package farm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/nimbo/internal/model"
)

func newAuthorizerFor(farm *model.Farm) *Authorizer {
	return NewAuthorizer(&mockFarmRepo{
		findMemberFn: func(_ context.Context, farmID, userID string) (*model.Member, error) {
			if farmID != farm.ID {
				return nil, nil
			}
			m, ok := farm.Members[userID]
			if !ok {
				return nil, nil
			}
			return &m, nil
		},
	})
}

func TestRequireMember(t *testing.T) {
	authz := newAuthorizerFor(sampleFarm())
	ctx := context.Background()

	role, err := authz.RequireMember(ctx, "f-1", "viewer")
	require.NoError(t, err)
	assert.Equal(t, model.RoleViewer, role)

	_, err = authz.RequireMember(ctx, "f-1", "stranger")
	assertAPIError(t, err, model.ErrCodeFarmNotFound)

	_, err = authz.RequireMember(ctx, "other", "owner")
	assertAPIError(t, err, model.ErrCodeFarmNotFound)

	_, err = authz.RequireMember(ctx, "", "owner")
	assertAPIError(t, err, model.ErrCodeFarmNotFound)
}

func TestRequireWriter(t *testing.T) {
	authz := newAuthorizerFor(sampleFarm())
	ctx := context.Background()

	for _, uid := range []string{"owner", "editor"} {
		_, err := authz.RequireWriter(ctx, "f-1", uid)
		assert.NoError(t, err, uid)
	}

	_, err := authz.RequireWriter(ctx, "f-1", "viewer")
	assertAPIError(t, err, model.ErrCodeInsufficientRole)

	_, err = authz.RequireWriter(ctx, "f-1", "stranger")
	assertAPIError(t, err, model.ErrCodeFarmNotFound)
}

func TestRequireOwner(t *testing.T) {
	authz := newAuthorizerFor(sampleFarm())
	ctx := context.Background()

	assert.NoError(t, authz.RequireOwner(ctx, "f-1", "owner"))
	assertAPIError(t, authz.RequireOwner(ctx, "f-1", "editor"), model.ErrCodeNotFarmOwner)
}

func TestRequireMember_RepoError(t *testing.T) {
	dbErr := errors.New("connection refused")
	authz := NewAuthorizer(&mockFarmRepo{
		findMemberFn: func(context.Context, string, string) (*model.Member, error) {
			return nil, dbErr
		},
	})

	_, err := authz.RequireMember(context.Background(), "f-1", "owner")
	assert.ErrorIs(t, err, dbErr)
}
