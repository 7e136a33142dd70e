package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/nimbo/internal/model"
)

var invitationCols = []string{"id", "farm_id", "farm_name", "email", "email_lower", "role", "status",
	"invited_by", "invited_by_email", "created_at", "responded_at"}

func TestPostgresInvitationRepo_CreateByOwner_DenormalizesFarmName(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresInvitationRepo(db)
	now := time.Now()

	mock.ExpectQuery(`(?s)INSERT INTO invitations.*SELECT .* FROM farms f.*o.role = 'owner'.*RETURNING farm_name`).
		WithArgs("inv-1", "f-1", "Bea@Example.com", "bea@example.com", "viewer", "u-1", "ana@example.com", now).
		WillReturnRows(sqlmock.NewRows([]string{"farm_name"}).AddRow("La Esperanza"))

	inv := &model.Invitation{
		ID: "inv-1", FarmID: "f-1", Email: "Bea@Example.com", EmailLower: "bea@example.com",
		Role: model.RoleViewer, InvitedBy: "u-1", InvitedByEmail: "ana@example.com", CreatedAt: now,
	}
	require.NoError(t, repo.CreateByOwner(context.Background(), inv))
	assert.Equal(t, "La Esperanza", inv.FarmName)
	assert.Equal(t, model.InvitationPending, inv.Status)
}

func TestPostgresInvitationRepo_CreateByOwner_NotOwner(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresInvitationRepo(db)

	mock.ExpectQuery(`INSERT INTO invitations`).WillReturnError(sql.ErrNoRows)

	err := repo.CreateByOwner(context.Background(), &model.Invitation{ID: "inv-1", Role: model.RoleViewer})
	assert.ErrorIs(t, err, ErrStaleWrite)
}

func TestPostgresInvitationRepo_ListPendingByEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresInvitationRepo(db)
	now := time.Now()

	mock.ExpectQuery(`(?s)WHERE email_lower = \$1 AND status = 'pending'\s+ORDER BY created_at DESC`).
		WithArgs("bea@example.com").
		WillReturnRows(sqlmock.NewRows(invitationCols).
			AddRow("inv-1", "f-1", "La Esperanza", "bea@example.com", "bea@example.com", "editor", "pending",
				"u-1", "ana@example.com", now, nil))

	list, err := repo.ListPendingByEmail(context.Background(), "bea@example.com")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.RoleEditor, list[0].Role)
	assert.Nil(t, list[0].RespondedAt)
}

func TestPostgresInvitationRepo_Accept_UpsertsMembership(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresInvitationRepo(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)FROM invitations WHERE id = \$1 FOR UPDATE`).
		WithArgs("inv-1").
		WillReturnRows(sqlmock.NewRows(invitationCols).
			AddRow("inv-1", "f-1", "La Esperanza", "bea@example.com", "bea@example.com", "editor", "pending",
				"u-1", "ana@example.com", now, nil))
	mock.ExpectExec(`(?s)INSERT INTO farm_members.*ON CONFLICT \(farm_id, user_id\) DO UPDATE.*CASE WHEN farm_members.role = 'owner'`).
		WithArgs("f-1", "u-2", "bea@example.com", "Bea", "editor", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE invitations SET status = 'accepted'`).
		WithArgs("inv-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Accept(context.Background(), "inv-1",
		model.Member{UserID: "u-2", Email: "bea@example.com", DisplayName: "Bea"}, now)
	require.NoError(t, err)
}

func TestPostgresInvitationRepo_Accept_AlreadyResolved(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresInvitationRepo(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("inv-1").
		WillReturnRows(sqlmock.NewRows(invitationCols).
			AddRow("inv-1", "f-1", "La Esperanza", "bea@example.com", "bea@example.com", "editor", "accepted",
				"u-1", "ana@example.com", now, now))
	mock.ExpectRollback()

	err := repo.Accept(context.Background(), "inv-1", model.Member{UserID: "u-2"}, now)
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestPostgresInvitationRepo_Decline_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresInvitationRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("inv-x").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.Decline(context.Background(), "inv-x", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}
