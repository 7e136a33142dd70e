package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/nimbo/internal/model"
)

// PostgresRainfallRepo はPostgreSQLを使用した降水記録リポジトリ。
type PostgresRainfallRepo struct {
	db *sql.DB
}

// NewPostgresRainfallRepo はPostgresRainfallRepoを生成する。
func NewPostgresRainfallRepo(db *sql.DB) *PostgresRainfallRepo {
	return &PostgresRainfallRepo{db: db}
}

const insertRainfallSQL = `INSERT INTO rainfall_records (id, farm_id, recorded_on, amount_mm, source, created_by, created_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7)`

func nullableUUID(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create は降水記録を1件作成する。
func (r *PostgresRainfallRepo) Create(ctx context.Context, rec *model.Rainfall) error {
	_, err := r.db.ExecContext(ctx, insertRainfallSQL,
		rec.ID, rec.FarmID, rec.Date, rec.Amount, string(rec.Source), nullableUUID(rec.CreatedBy), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rainfall record: %w", err)
	}
	return nil
}

// CreateBatch は降水記録を単一トランザクションで一括作成する。
func (r *PostgresRainfallRepo) CreateBatch(ctx context.Context, records []*model.Rainfall) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertRainfallSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare rainfall insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		_, err := stmt.ExecContext(ctx,
			rec.ID, rec.FarmID, rec.Date, rec.Amount, string(rec.Source), nullableUUID(rec.CreatedBy), rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert rainfall record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListByFarm は農場の降水記録を日付の降順で返す。
func (r *PostgresRainfallRepo) ListByFarm(ctx context.Context, farmID string, from, to time.Time) ([]*model.Rainfall, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, farm_id, recorded_on, amount_mm, source, created_by, created_at
		 FROM rainfall_records
		 WHERE farm_id = $1`)
	args := []any{farmID}
	if !from.IsZero() {
		args = append(args, from)
		fmt.Fprintf(&sb, " AND recorded_on >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		fmt.Fprintf(&sb, " AND recorded_on < $%d", len(args))
	}
	sb.WriteString(" ORDER BY recorded_on DESC, created_at DESC")

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rainfall records: %w", err)
	}
	defer rows.Close()

	var records []*model.Rainfall
	for rows.Next() {
		rec := &model.Rainfall{}
		var source string
		var createdBy sql.NullString
		if err := rows.Scan(&rec.ID, &rec.FarmID, &rec.Date, &rec.Amount, &source, &createdBy, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rainfall record: %w", err)
		}
		rec.Date = rec.Date.UTC()
		rec.Source = model.RainfallSource(source)
		rec.CreatedBy = createdBy.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rainfall records: %w", err)
	}
	return records, nil
}

// Delete は農場の降水記録を削除する。見つからない場合はErrNotFoundを返す。
func (r *PostgresRainfallRepo) Delete(ctx context.Context, farmID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM rainfall_records WHERE farm_id = $1 AND id = $2`,
		farmID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete rainfall record: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MonthlyTotals は指定年の月別合計を返す。記録のない月は含まない。
func (r *PostgresRainfallRepo) MonthlyTotals(ctx context.Context, farmID string, year int) ([]model.MonthlyRainfall, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT EXTRACT(MONTH FROM recorded_on AT TIME ZONE 'UTC')::int AS month, SUM(amount_mm)
		 FROM rainfall_records
		 WHERE farm_id = $1 AND EXTRACT(YEAR FROM recorded_on AT TIME ZONE 'UTC')::int = $2
		 GROUP BY month
		 ORDER BY month`,
		farmID, year,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate monthly rainfall: %w", err)
	}
	defer rows.Close()

	var totals []model.MonthlyRainfall
	for rows.Next() {
		var m model.MonthlyRainfall
		if err := rows.Scan(&m.Month, &m.Total); err != nil {
			return nil, fmt.Errorf("failed to scan monthly rainfall: %w", err)
		}
		totals = append(totals, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate monthly rainfall: %w", err)
	}
	return totals, nil
}

// compile-time interface check
var _ RainfallRepository = (*PostgresRainfallRepo)(nil)
