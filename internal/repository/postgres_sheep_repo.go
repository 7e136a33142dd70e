package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/nimbo/internal/model"
)

// PostgresSheepRepo はPostgreSQLを使用した家畜リポジトリ。
type PostgresSheepRepo struct {
	db *sql.DB
}

// NewPostgresSheepRepo はPostgresSheepRepoを生成する。
func NewPostgresSheepRepo(db *sql.DB) *PostgresSheepRepo {
	return &PostgresSheepRepo{db: db}
}

const sheepColumns = `id, farm_id, tag, birth_date, sex, breed, mother_tag, father_tag, lifecycle,
	milk_production, diseases, pregnant, last_birth, last_insemination, expected_birth,
	created_at, updated_at`

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func scanSheep(row interface{ Scan(...any) error }) (*model.Sheep, error) {
	s := &model.Sheep{}
	var sex, lifecycle string
	var birth, lastBirth, lastInsem, expected sql.NullTime
	err := row.Scan(&s.ID, &s.FarmID, &s.Tag, &birth, &sex, &s.Breed, &s.MotherTag, &s.FatherTag,
		&lifecycle, &s.MilkProduction, &s.Diseases, &s.Reproductive.Pregnant,
		&lastBirth, &lastInsem, &expected, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Sex = model.Sex(sex)
	s.Lifecycle = model.Lifecycle(lifecycle)
	s.BirthDate = timePtr(birth)
	s.Reproductive.LastBirth = timePtr(lastBirth)
	s.Reproductive.LastInsemination = timePtr(lastInsem)
	s.Reproductive.ExpectedBirthDate = timePtr(expected)
	return s, nil
}

// Create は家畜記録と初期体重を同一トランザクションで作成する。
func (r *PostgresSheepRepo) Create(ctx context.Context, s *model.Sheep) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sheep (`+sheepColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		s.ID, s.FarmID, s.Tag, nullTime(s.BirthDate), string(s.Sex), s.Breed, s.MotherTag, s.FatherTag,
		string(s.Lifecycle), s.MilkProduction, s.Diseases, s.Reproductive.Pregnant,
		nullTime(s.Reproductive.LastBirth), nullTime(s.Reproductive.LastInsemination),
		nullTime(s.Reproductive.ExpectedBirthDate), s.CreatedAt, s.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert sheep: %w", err)
	}

	for _, w := range s.Weights {
		if err := insertWeight(ctx, tx, s.ID, w); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertWeight(ctx context.Context, db execer, sheepID string, w model.WeightEntry) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO sheep_weights (id, sheep_id, weighed_on, value_kg, created_at)
		 VALUES ($1, $2, $3, $4, now())`,
		uuid.New().String(), sheepID, w.Date, w.Value,
	)
	if err != nil {
		return fmt.Errorf("failed to insert weight: %w", err)
	}
	return nil
}

// Update は家畜記録の属性を更新する。体重と履歴は更新しない。
func (r *PostgresSheepRepo) Update(ctx context.Context, s *model.Sheep) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sheep SET
		   tag = $3, birth_date = $4, sex = $5, breed = $6, mother_tag = $7, father_tag = $8,
		   milk_production = $9, diseases = $10, pregnant = $11, last_birth = $12,
		   last_insemination = $13, expected_birth = $14, updated_at = $15
		 WHERE farm_id = $1 AND id = $2`,
		s.FarmID, s.ID, s.Tag, nullTime(s.BirthDate), string(s.Sex), s.Breed, s.MotherTag, s.FatherTag,
		s.MilkProduction, s.Diseases, s.Reproductive.Pregnant,
		nullTime(s.Reproductive.LastBirth), nullTime(s.Reproductive.LastInsemination),
		nullTime(s.Reproductive.ExpectedBirthDate), s.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to update sheep: %w", err)
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

// FindByID は体重履歴付きで家畜記録を取得する。見つからない場合はnilを返す。
func (r *PostgresSheepRepo) FindByID(ctx context.Context, farmID, id string) (*model.Sheep, error) {
	s, err := scanSheep(r.db.QueryRowContext(ctx,
		`SELECT `+sheepColumns+` FROM sheep WHERE farm_id = $1 AND id = $2`,
		farmID, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find sheep: %w", err)
	}
	if err := r.attachWeights(ctx, []*model.Sheep{s}); err != nil {
		return nil, err
	}
	return s, nil
}

// FindByTags は耳標番号で家畜記録を取得する。archivedの記録も含む。
func (r *PostgresSheepRepo) FindByTags(ctx context.Context, farmID string, tags []string) (map[string]*model.Sheep, error) {
	result := make(map[string]*model.Sheep, len(tags))
	if len(tags) == 0 {
		return result, nil
	}
	sheep, err := r.query(ctx,
		`SELECT `+sheepColumns+` FROM sheep WHERE farm_id = $1 AND tag = ANY($2)`,
		farmID, pq.Array(tags),
	)
	if err != nil {
		return nil, err
	}
	for _, s := range sheep {
		result[s.Tag] = s
	}
	return result, nil
}

// ListByFarm は農場の家畜記録を耳標番号順に返す。
func (r *PostgresSheepRepo) ListByFarm(ctx context.Context, farmID string, includeArchived bool) ([]*model.Sheep, error) {
	q := `SELECT ` + sheepColumns + ` FROM sheep WHERE farm_id = $1`
	if !includeArchived {
		q += ` AND lifecycle = 'active'`
	}
	q += ` ORDER BY tag ASC`
	sheep, err := r.query(ctx, q, farmID)
	if err != nil {
		return nil, err
	}
	if err := r.attachWeights(ctx, sheep); err != nil {
		return nil, err
	}
	return sheep, nil
}

func (r *PostgresSheepRepo) query(ctx context.Context, q string, args ...any) ([]*model.Sheep, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sheep: %w", err)
	}
	defer rows.Close()

	var sheep []*model.Sheep
	for rows.Next() {
		s, err := scanSheep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sheep: %w", err)
		}
		sheep = append(sheep, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sheep: %w", err)
	}
	return sheep, nil
}

// attachWeights は体重履歴を日付昇順で読み込んで各記録に設定する。
func (r *PostgresSheepRepo) attachWeights(ctx context.Context, sheep []*model.Sheep) error {
	if len(sheep) == 0 {
		return nil
	}
	byID := make(map[string]*model.Sheep, len(sheep))
	ids := make([]string, 0, len(sheep))
	for _, s := range sheep {
		byID[s.ID] = s
		ids = append(ids, s.ID)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT sheep_id, weighed_on, value_kg
		 FROM sheep_weights
		 WHERE sheep_id = ANY($1)
		 ORDER BY weighed_on ASC, created_at ASC`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to load weights: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sheepID string
		var w model.WeightEntry
		if err := rows.Scan(&sheepID, &w.Date, &w.Value); err != nil {
			return fmt.Errorf("failed to scan weight: %w", err)
		}
		w.Date = w.Date.UTC()
		if s, ok := byID[sheepID]; ok {
			s.Weights = append(s.Weights, w)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate weights: %w", err)
	}
	return nil
}

// AddWeight は体重の計測値を追加する。
func (r *PostgresSheepRepo) AddWeight(ctx context.Context, sheepID string, entry model.WeightEntry) error {
	return insertWeight(ctx, r.db, sheepID, entry)
}

// SetLifecycle はライフサイクル状態を変更する。見つからない場合はErrNotFoundを返す。
func (r *PostgresSheepRepo) SetLifecycle(ctx context.Context, farmID, id string, lifecycle model.Lifecycle) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sheep SET lifecycle = $3, updated_at = now() WHERE farm_id = $1 AND id = $2`,
		farmID, id, string(lifecycle),
	)
	if err != nil {
		return fmt.Errorf("failed to set lifecycle: %w", err)
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

// AddHistory は履歴エントリを追加する。
func (r *PostgresSheepRepo) AddHistory(ctx context.Context, h *model.SheepHistory) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sheep_history (id, farm_id, sheep_id, tag, title, detail, occurred_on, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		h.ID, h.FarmID, h.SheepID, h.Tag, h.Title, h.Detail, h.Date, h.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sheep history: %w", err)
	}
	return nil
}

// ListHistory は家畜の履歴エントリを新しい順に返す。
func (r *PostgresSheepRepo) ListHistory(ctx context.Context, farmID, sheepID string) ([]*model.SheepHistory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, farm_id, sheep_id, tag, title, detail, occurred_on, created_at
		 FROM sheep_history
		 WHERE farm_id = $1 AND sheep_id = $2
		 ORDER BY occurred_on DESC, created_at DESC`,
		farmID, sheepID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sheep history: %w", err)
	}
	defer rows.Close()

	var entries []*model.SheepHistory
	for rows.Next() {
		h := &model.SheepHistory{}
		if err := rows.Scan(&h.ID, &h.FarmID, &h.SheepID, &h.Tag, &h.Title, &h.Detail, &h.Date, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sheep history: %w", err)
		}
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sheep history: %w", err)
	}
	return entries, nil
}

// CountActive はactiveな家畜数と妊娠中の頭数を返す。
func (r *PostgresSheepRepo) CountActive(ctx context.Context, farmID string) (int, int, error) {
	var total, pregnant int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE pregnant)
		 FROM sheep
		 WHERE farm_id = $1 AND lifecycle = 'active'`,
		farmID,
	).Scan(&total, &pregnant)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count sheep: %w", err)
	}
	return total, pregnant, nil
}

// compile-time interface check
var _ SheepRepository = (*PostgresSheepRepo)(nil)
