package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/nimbo/internal/model"
)

// PostgresInvitationRepo はPostgreSQLを使用した招待リポジトリ。
type PostgresInvitationRepo struct {
	db *sql.DB
}

// NewPostgresInvitationRepo はPostgresInvitationRepoを生成する。
func NewPostgresInvitationRepo(db *sql.DB) *PostgresInvitationRepo {
	return &PostgresInvitationRepo{db: db}
}

const invitationColumns = `id, farm_id, farm_name, email, email_lower, role, status,
	invited_by, invited_by_email, created_at, responded_at`

func scanInvitation(row interface{ Scan(...any) error }) (*model.Invitation, error) {
	inv := &model.Invitation{}
	var role, status string
	var respondedAt sql.NullTime
	err := row.Scan(&inv.ID, &inv.FarmID, &inv.FarmName, &inv.Email, &inv.EmailLower,
		&role, &status, &inv.InvitedBy, &inv.InvitedByEmail, &inv.CreatedAt, &respondedAt)
	if err != nil {
		return nil, err
	}
	inv.Role = model.Role(role)
	inv.Status = model.InvitationStatus(status)
	if respondedAt.Valid {
		t := respondedAt.Time
		inv.RespondedAt = &t
	}
	return inv, nil
}

// CreateByOwner は招待を作成する。
// 招待者がオーナーである場合にのみINSERTされ、農場名はその時点の値が書き込まれる。
func (r *PostgresInvitationRepo) CreateByOwner(ctx context.Context, inv *model.Invitation) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO invitations (id, farm_id, farm_name, email, email_lower, role, status,
		                          invited_by, invited_by_email, created_at)
		 SELECT $1, f.id, f.name, $3, $4, $5, 'pending', $6, $7, $8
		 FROM farms f
		 INNER JOIN farm_members o ON o.farm_id = f.id AND o.user_id = $6 AND o.role = 'owner'
		 WHERE f.id = $2
		 RETURNING farm_name`,
		inv.ID, inv.FarmID, inv.Email, inv.EmailLower, string(inv.Role),
		inv.InvitedBy, inv.InvitedByEmail, inv.CreatedAt,
	).Scan(&inv.FarmName)

	if err == sql.ErrNoRows {
		return ErrStaleWrite
	}
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	inv.Status = model.InvitationPending
	return nil
}

// FindByID は指定IDの招待を取得する。見つからない場合はnilを返す。
func (r *PostgresInvitationRepo) FindByID(ctx context.Context, id string) (*model.Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find invitation: %w", err)
	}
	return inv, nil
}

// ListPendingByEmail は正規化済みメールアドレス宛の保留中招待を新しい順に返す。
func (r *PostgresInvitationRepo) ListPendingByEmail(ctx context.Context, emailLower string) ([]*model.Invitation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+invitationColumns+`
		 FROM invitations
		 WHERE email_lower = $1 AND status = 'pending'
		 ORDER BY created_at DESC`,
		emailLower,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*model.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invitations: %w", err)
	}
	return invitations, nil
}

// lockPending は招待行をロックし、保留中であることを確認する。
func lockPending(ctx context.Context, tx *sql.Tx, id string) (*model.Invitation, error) {
	inv, err := scanInvitation(tx.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock invitation: %w", err)
	}
	if inv.Status != model.InvitationPending {
		return nil, ErrNotPending
	}
	return inv, nil
}

// Accept は招待を承諾し、メンバーシップのUPSERTとステータス更新を同一トランザクションで行う。
// 既にオーナーとして所属している場合、役割は変更しない。
func (r *PostgresInvitationRepo) Accept(ctx context.Context, id string, member model.Member, respondedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inv, err := lockPending(ctx, tx, id)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO farm_members (farm_id, user_id, email, display_name, role, joined_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (farm_id, user_id) DO UPDATE SET
		   email = EXCLUDED.email,
		   display_name = EXCLUDED.display_name,
		   role = CASE WHEN farm_members.role = 'owner' THEN farm_members.role ELSE EXCLUDED.role END`,
		inv.FarmID, member.UserID, member.Email, member.DisplayName, string(inv.Role), respondedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert membership: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE invitations SET status = 'accepted', responded_at = $2 WHERE id = $1`,
		id, respondedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mark invitation accepted: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Decline は招待を辞退済みにする。
func (r *PostgresInvitationRepo) Decline(ctx context.Context, id string, respondedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := lockPending(ctx, tx, id); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE invitations SET status = 'declined', responded_at = $2 WHERE id = $1`,
		id, respondedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mark invitation declined: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var _ InvitationRepository = (*PostgresInvitationRepo)(nil)
