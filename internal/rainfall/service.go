package rainfall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/nimbo/internal/events"
	"github.com/hitoshi/nimbo/internal/metrics"
	"github.com/hitoshi/nimbo/internal/model"
	"github.com/hitoshi/nimbo/internal/repository"
	"github.com/hitoshi/nimbo/internal/storage"
)

// DefaultMaxImportSize は取り込みファイルサイズの既定上限（5MiB）。
const DefaultMaxImportSize int64 = 5 << 20

// Authorizer は農場データへのアクセス権を判定する。
type Authorizer interface {
	RequireMember(ctx context.Context, farmID, userID string) (model.Role, error)
	RequireWriter(ctx context.Context, farmID, userID string) (model.Role, error)
}

// ImportResult は一括取り込みの結果を表す。
type ImportResult struct {
	Imported   int    `json:"imported"`
	Rejected   int    `json:"rejected"`
	ArchiveKey string `json:"archive_key,omitempty"`
}

// Service は降水記録のサービス層。
type Service struct {
	repo      repository.RainfallRepository
	authz     Authorizer
	archiver  storage.Archiver
	publisher events.Publisher
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	maxSize   int64
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	repo repository.RainfallRepository,
	authz Authorizer,
	archiver storage.Archiver,
	publisher events.Publisher,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	maxSize int64,
) *Service {
	if maxSize <= 0 {
		maxSize = DefaultMaxImportSize
	}
	if archiver == nil {
		archiver = storage.NopArchiver{}
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		repo:      repo,
		authz:     authz,
		archiver:  archiver,
		publisher: publisher,
		metrics:   collector,
		logger:    logger,
		maxSize:   maxSize,
		now:       time.Now,
	}
}

// MaxImportSize は受け付ける取り込みファイルの上限バイト数を返す。
func (s *Service) MaxImportSize() int64 {
	return s.maxSize
}

// Import はファイルを解析し、有効な行を単一トランザクションで登録する。
// 有効な行が1件もない場合は何も書き込まずにエラーを返す。
func (s *Service) Import(ctx context.Context, userID, farmID, filename, contentType string, data []byte) (*ImportResult, error) {
	if _, err := s.authz.RequireWriter(ctx, farmID, userID); err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxSize {
		s.metrics.RecordImport("too_large", 0, 0)
		return nil, model.NewFileTooLargeError(s.maxSize)
	}

	format, err := DetectFormat(filename)
	if err != nil {
		s.metrics.RecordImport("unsupported", 0, 0)
		return nil, model.NewUnsupportedFormatError(extensionOf(filename))
	}

	rows, err := ReadRows(format, data)
	if err != nil {
		s.metrics.RecordImport("parse_failed", 0, 0)
		s.logger.Warn("取り込みファイルの解析に失敗しました",
			slog.String("farm_id", farmID),
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
		return nil, model.NewParseFailedError("the file could not be read")
	}

	now := s.now().UTC()
	records := make([]*model.Rainfall, 0, len(rows))
	for _, row := range rows {
		entry, ok := Normalize(row)
		if !ok {
			continue
		}
		records = append(records, &model.Rainfall{
			ID:        uuid.New().String(),
			FarmID:    farmID,
			Date:      entry.Date,
			Amount:    entry.Amount,
			Source:    model.RainfallSourceFile,
			CreatedBy: userID,
			CreatedAt: now,
		})
	}
	rejected := len(rows) - len(records)

	if len(records) == 0 {
		s.metrics.RecordImport("no_valid_rows", 0, rejected)
		return nil, model.NewNoValidRowsError()
	}

	if err := s.repo.CreateBatch(ctx, records); err != nil {
		s.metrics.RecordImport("store_failed", 0, rejected)
		return nil, fmt.Errorf("降水記録の一括登録に失敗しました: %w", err)
	}

	result := &ImportResult{Imported: len(records), Rejected: rejected}
	key, err := s.archiver.Archive(ctx, farmID, filename, contentType, data)
	if err != nil {
		s.logger.Warn("取り込みファイルの保管に失敗しました",
			slog.String("farm_id", farmID),
			slog.String("error", err.Error()),
		)
	} else {
		result.ArchiveKey = key
	}

	s.metrics.RecordImport("success", result.Imported, result.Rejected)
	s.logger.Info("降水データを取り込みました",
		slog.String("farm_id", farmID),
		slog.String("user_id", userID),
		slog.Int("imported", result.Imported),
		slog.Int("rejected", result.Rejected),
	)
	s.publish(farmID, map[string]int{"imported": result.Imported})

	return result, nil
}

// Create は手入力の降水記録を1件登録する。dateはYYYY-MM-DD形式。
func (s *Service) Create(ctx context.Context, userID, farmID, date string, amount float64) (*model.Rainfall, error) {
	if _, err := s.authz.RequireWriter(ctx, farmID, userID); err != nil {
		return nil, err
	}

	day, err := time.Parse("2006-01-02", strings.TrimSpace(date))
	if err != nil {
		return nil, model.NewInvalidDateError(date)
	}
	amount, ok := NormalizeAmount(amount)
	if !ok {
		return nil, model.NewInvalidAmountError()
	}

	rec := &model.Rainfall{
		ID:        uuid.New().String(),
		FarmID:    farmID,
		Date:      NoonUTC(day),
		Amount:    amount,
		Source:    model.RainfallSourceManual,
		CreatedBy: userID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("降水記録の登録に失敗しました: %w", err)
	}

	s.publish(farmID, map[string]string{"id": rec.ID})
	return rec, nil
}

// Delete は降水記録を削除する。
func (s *Service) Delete(ctx context.Context, userID, farmID, recordID string) error {
	if _, err := s.authz.RequireWriter(ctx, farmID, userID); err != nil {
		return err
	}

	err := s.repo.Delete(ctx, farmID, recordID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewRainfallNotFoundError(recordID)
	}
	if err != nil {
		return fmt.Errorf("降水記録の削除に失敗しました: %w", err)
	}

	s.publish(farmID, map[string]string{"deleted": recordID})
	return nil
}

// List は農場の降水記録を日付の降順で返す。yearが0の場合は全期間。
func (s *Service) List(ctx context.Context, userID, farmID string, year int) ([]*model.Rainfall, error) {
	if _, err := s.authz.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}

	var from, to time.Time
	if year > 0 {
		from = time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		to = from.AddDate(1, 0, 0)
	}
	records, err := s.repo.ListByFarm(ctx, farmID, from, to)
	if err != nil {
		return nil, fmt.Errorf("降水記録の取得に失敗しました: %w", err)
	}
	return records, nil
}

// YearChart は指定年の月別合計を返す。
func (s *Service) YearChart(ctx context.Context, userID, farmID string, year int) (*YearChart, error) {
	if _, err := s.authz.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}

	totals, err := s.repo.MonthlyTotals(ctx, farmID, year)
	if err != nil {
		return nil, fmt.Errorf("月別降水量の集計に失敗しました: %w", err)
	}
	chart := BuildYearChart(year, totals)
	return &chart, nil
}

// MonthSummary は指定年月の集計を返す。
func (s *Service) MonthSummary(ctx context.Context, userID, farmID string, year int, month time.Month) (*MonthSummary, error) {
	if _, err := s.authz.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}

	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	records, err := s.repo.ListByFarm(ctx, farmID, from, from.AddDate(0, 1, 0))
	if err != nil {
		return nil, fmt.Errorf("降水記録の取得に失敗しました: %w", err)
	}
	summary := Summarize(records, year, month)
	return &summary, nil
}

func (s *Service) publish(farmID string, data any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(events.FarmTopic(farmID), events.Event{
		Type:   events.TypeRainfallChanged,
		FarmID: farmID,
		Data:   data,
	})
}

func extensionOf(filename string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 {
		return strings.ToLower(filename[i:])
	}
	return filename
}
