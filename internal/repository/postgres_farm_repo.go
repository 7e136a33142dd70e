package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/nimbo/internal/model"
)

// PostgresFarmRepo はPostgreSQLを使用した農場リポジトリ。
type PostgresFarmRepo struct {
	db *sql.DB
}

// NewPostgresFarmRepo はPostgresFarmRepoを生成する。
func NewPostgresFarmRepo(db *sql.DB) *PostgresFarmRepo {
	return &PostgresFarmRepo{db: db}
}

// CreateWithOwner は農場とオーナーのメンバーレコードを同一トランザクションで作成する。
func (r *PostgresFarmRepo) CreateWithOwner(ctx context.Context, farm *model.Farm) error {
	owner, ok := farm.Members[farm.OwnerID]
	if !ok {
		owner = model.Member{
			UserID:   farm.OwnerID,
			Email:    farm.OwnerEmail,
			Role:     model.RoleOwner,
			JoinedAt: farm.CreatedAt,
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO farms (id, name, owner_id, owner_email, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		farm.ID, farm.Name, farm.OwnerID, farm.OwnerEmail, farm.CreatedAt, farm.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert farm: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO farm_members (farm_id, user_id, email, display_name, role, joined_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		farm.ID, owner.UserID, owner.Email, owner.DisplayName, string(model.RoleOwner), owner.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindByID はメンバー一覧付きで農場を取得する。見つからない場合はnilを返す。
func (r *PostgresFarmRepo) FindByID(ctx context.Context, id string) (*model.Farm, error) {
	farm := &model.Farm{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, owner_email, created_at, updated_at
		 FROM farms
		 WHERE id = $1`,
		id,
	).Scan(&farm.ID, &farm.Name, &farm.OwnerID, &farm.OwnerEmail, &farm.CreatedAt, &farm.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find farm: %w", err)
	}

	members, err := r.loadMembers(ctx, []string{farm.ID})
	if err != nil {
		return nil, err
	}
	farm.Members = members[farm.ID]
	if farm.Members == nil {
		farm.Members = map[string]model.Member{}
	}
	return farm, nil
}

// ListByMember はユーザーが所属する農場を作成日時の昇順で返す。
func (r *PostgresFarmRepo) ListByMember(ctx context.Context, userID string) ([]*model.Farm, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT f.id, f.name, f.owner_id, f.owner_email, f.created_at, f.updated_at
		 FROM farms f
		 INNER JOIN farm_members m ON m.farm_id = f.id
		 WHERE m.user_id = $1
		 ORDER BY f.created_at ASC, f.id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list farms by member: %w", err)
	}
	defer rows.Close()

	var farms []*model.Farm
	var ids []string
	for rows.Next() {
		farm := &model.Farm{}
		if err := rows.Scan(&farm.ID, &farm.Name, &farm.OwnerID, &farm.OwnerEmail, &farm.CreatedAt, &farm.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan farm: %w", err)
		}
		farms = append(farms, farm)
		ids = append(ids, farm.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate farms: %w", err)
	}
	if len(farms) == 0 {
		return farms, nil
	}

	members, err := r.loadMembers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, farm := range farms {
		farm.Members = members[farm.ID]
		if farm.Members == nil {
			farm.Members = map[string]model.Member{}
		}
	}
	return farms, nil
}

// loadMembers は複数農場のメンバーを農場IDごとにまとめて取得する。
func (r *PostgresFarmRepo) loadMembers(ctx context.Context, farmIDs []string) (map[string]map[string]model.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT farm_id, user_id, email, display_name, role, joined_at
		 FROM farm_members
		 WHERE farm_id = ANY($1)`,
		pq.Array(farmIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load farm members: %w", err)
	}
	defer rows.Close()

	result := make(map[string]map[string]model.Member, len(farmIDs))
	for rows.Next() {
		var farmID, role string
		var m model.Member
		if err := rows.Scan(&farmID, &m.UserID, &m.Email, &m.DisplayName, &role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan farm member: %w", err)
		}
		m.Role = model.Role(role)
		if result[farmID] == nil {
			result[farmID] = map[string]model.Member{}
		}
		result[farmID][m.UserID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate farm members: %w", err)
	}
	return result, nil
}

// FindMember は農場のメンバーレコードを取得する。メンバーでない場合はnilを返す。
func (r *PostgresFarmRepo) FindMember(ctx context.Context, farmID, userID string) (*model.Member, error) {
	m := &model.Member{}
	var role string
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, email, display_name, role, joined_at
		 FROM farm_members
		 WHERE farm_id = $1 AND user_id = $2`,
		farmID, userID,
	).Scan(&m.UserID, &m.Email, &m.DisplayName, &role, &m.JoinedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find farm member: %w", err)
	}
	m.Role = model.Role(role)
	return m, nil
}

// UpdateMemberRole は対象メンバーの役割を更新する。
// オーナー権限と対象の状態は同じUPDATE文の条件で再検証する。
func (r *PostgresFarmRepo) UpdateMemberRole(ctx context.Context, farmID, actorID, targetID string, role model.Role) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE farm_members m SET role = $4
		 WHERE m.farm_id = $1 AND m.user_id = $3 AND m.role <> 'owner'
		   AND EXISTS (
		     SELECT 1 FROM farm_members o
		     WHERE o.farm_id = $1 AND o.user_id = $2 AND o.role = 'owner'
		   )`,
		farmID, actorID, targetID, string(role),
	)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrStaleWrite
	}
	return nil
}

// RemoveMember は対象メンバーを農場から削除する。
// オーナー権限と対象の状態は同じDELETE文の条件で再検証する。
func (r *PostgresFarmRepo) RemoveMember(ctx context.Context, farmID, actorID, targetID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM farm_members m
		 WHERE m.farm_id = $1 AND m.user_id = $3 AND m.role <> 'owner'
		   AND EXISTS (
		     SELECT 1 FROM farm_members o
		     WHERE o.farm_id = $1 AND o.user_id = $2 AND o.role = 'owner'
		   )`,
		farmID, actorID, targetID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrStaleWrite
	}
	return nil
}

// compile-time interface check
var _ FarmRepository = (*PostgresFarmRepo)(nil)
