package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/nimbo/internal/model"
)

// PostgresSettingsRepo はPostgreSQLを使用したユーザー設定リポジトリ。
type PostgresSettingsRepo struct {
	db *sql.DB
}

// NewPostgresSettingsRepo はPostgresSettingsRepoを生成する。
func NewPostgresSettingsRepo(db *sql.DB) *PostgresSettingsRepo {
	return &PostgresSettingsRepo{db: db}
}

// Get はユーザー設定を取得する。未保存の場合はnilを返す。
func (r *PostgresSettingsRepo) Get(ctx context.Context, userID string) (*model.UserSettings, error) {
	settings := &model.UserSettings{}
	var location []byte
	var selected sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, location, selected_farm_id, updated_at
		 FROM user_settings
		 WHERE user_id = $1`,
		userID,
	).Scan(&settings.UserID, &location, &selected, &settings.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user settings: %w", err)
	}

	settings.Location = location
	settings.SelectedFarmID = selected.String
	return settings, nil
}

// SaveLocation は位置情報JSONを保存する。nilを渡すと削除する。
func (r *PostgresSettingsRepo) SaveLocation(ctx context.Context, userID string, location []byte) error {
	var value any
	if location != nil {
		value = string(location)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_settings (user_id, location, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET location = EXCLUDED.location, updated_at = now()`,
		userID, value,
	)
	if err != nil {
		return fmt.Errorf("failed to save location: %w", err)
	}
	return nil
}

// SaveSelectedFarm は選択中の農場IDを保存する。空文字列を渡すと解除する。
func (r *PostgresSettingsRepo) SaveSelectedFarm(ctx context.Context, userID, farmID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_settings (user_id, selected_farm_id, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET selected_farm_id = EXCLUDED.selected_farm_id, updated_at = now()`,
		userID, sql.NullString{String: farmID, Valid: farmID != ""},
	)
	if err != nil {
		return fmt.Errorf("failed to save selected farm: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SettingsRepository = (*PostgresSettingsRepo)(nil)
