// Package sheep は家畜（羊）の記録、体重、履歴、血統を扱う。
package sheep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/nimbo/internal/events"
	"github.com/hitoshi/nimbo/internal/model"
	"github.com/hitoshi/nimbo/internal/repository"
	"github.com/hitoshi/nimbo/internal/security"
)

// Authorizer は農場データへのアクセス権を判定する。
type Authorizer interface {
	RequireMember(ctx context.Context, farmID, userID string) (model.Role, error)
	RequireWriter(ctx context.Context, farmID, userID string) (model.Role, error)
}

// Genealogy は両親と祖父母を表す。耳標番号で解決できなかった個体はnil。
type Genealogy struct {
	Sheep               *model.Sheep `json:"sheep"`
	Mother              *model.Sheep `json:"mother"`
	Father              *model.Sheep `json:"father"`
	MaternalGrandmother *model.Sheep `json:"maternal_grandmother"`
	MaternalGrandfather *model.Sheep `json:"maternal_grandfather"`
	PaternalGrandmother *model.Sheep `json:"paternal_grandmother"`
	PaternalGrandfather *model.Sheep `json:"paternal_grandfather"`
}

// Service は家畜記録のサービス層。
type Service struct {
	repo      repository.SheepRepository
	authz     Authorizer
	sanitizer security.TextSanitizer
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	repo repository.SheepRepository,
	authz Authorizer,
	sanitizer security.TextSanitizer,
	publisher events.Publisher,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		authz:     authz,
		sanitizer: sanitizer,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Create は家畜記録を作成する。体重が指定された場合は初期体重として記録する。
func (s *Service) Create(ctx context.Context, userID, farmID string, in Input) (*model.Sheep, error) {
	if _, err := s.authz.RequireWriter(ctx, farmID, userID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sh := &model.Sheep{
		ID:        uuid.New().String(),
		FarmID:    farmID,
		Lifecycle: model.LifecycleActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.apply(sh, in); err != nil {
		return nil, err
	}
	if in.Weight != nil {
		if !validWeight(*in.Weight) {
			return nil, model.NewInvalidWeightError()
		}
		sh.Weights = []model.WeightEntry{{Date: now, Value: *in.Weight}}
	}

	err := s.repo.Create(ctx, sh)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, model.NewDuplicateTagError(sh.Tag)
	}
	if err != nil {
		return nil, fmt.Errorf("家畜記録の作成に失敗しました: %w", err)
	}

	s.logger.Info("家畜記録を作成しました",
		slog.String("farm_id", farmID),
		slog.String("sheep_id", sh.ID),
	)
	s.publish(farmID, map[string]string{"id": sh.ID})
	return sh, nil
}

// Update は家畜記録の属性を更新する。
// 体重は最新の記録と異なる値が指定された場合のみ新しい計測として追加する。
func (s *Service) Update(ctx context.Context, userID, farmID, sheepID string, in Input) (*model.Sheep, error) {
	if _, err := s.authz.RequireWriter(ctx, farmID, userID); err != nil {
		return nil, err
	}

	sh, err := s.load(ctx, farmID, sheepID)
	if err != nil {
		return nil, err
	}
	if err := s.apply(sh, in); err != nil {
		return nil, err
	}
	if in.Weight != nil && !validWeight(*in.Weight) {
		return nil, model.NewInvalidWeightError()
	}

	now := s.now().UTC()
	sh.UpdatedAt = now
	err = s.repo.Update(ctx, sh)
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return nil, model.NewDuplicateTagError(sh.Tag)
	case errors.Is(err, repository.ErrNotFound):
		return nil, model.NewSheepNotFoundError(sheepID)
	case err != nil:
		return nil, fmt.Errorf("家畜記録の更新に失敗しました: %w", err)
	}

	if in.Weight != nil {
		latest, ok := sh.LatestWeight()
		if !ok || latest.Value != *in.Weight {
			entry := model.WeightEntry{Date: now, Value: *in.Weight}
			if err := s.repo.AddWeight(ctx, sh.ID, entry); err != nil {
				return nil, fmt.Errorf("体重の記録に失敗しました: %w", err)
			}
			sh.Weights = append(sh.Weights, entry)
		}
	}

	s.publish(farmID, map[string]string{"id": sh.ID})
	return sh, nil
}

// AddWeight は体重の計測値を追加する。日付が空の場合は当日とする。
func (s *Service) AddWeight(ctx context.Context, userID, farmID, sheepID string, in WeightInput) (*model.Sheep, error) {
	if _, err := s.authz.RequireWriter(ctx, farmID, userID); err != nil {
		return nil, err
	}
	if !validWeight(in.Value) {
		return nil, model.NewInvalidWeightError()
	}
	date, err := parseDateOr("date", in.Date, s.now().UTC())
	if err != nil {
		return nil, err
	}

	sh, err := s.load(ctx, farmID, sheepID)
	if err != nil {
		return nil, err
	}
	entry := model.WeightEntry{Date: date, Value: in.Value}
	if err := s.repo.AddWeight(ctx, sh.ID, entry); err != nil {
		return nil, fmt.Errorf("体重の記録に失敗しました: %w", err)
	}
	sh.Weights = insertByDate(sh.Weights, entry)

	s.publish(farmID, map[string]string{"id": sh.ID})
	return sh, nil
}

// Get は家畜記録を取得する。
func (s *Service) Get(ctx context.Context, userID, farmID, sheepID string) (*model.Sheep, error) {
	if _, err := s.authz.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}
	return s.load(ctx, farmID, sheepID)
}

// List は農場の家畜記録を耳標番号順に返す。既定ではactiveな記録のみ。
func (s *Service) List(ctx context.Context, userID, farmID string, includeArchived bool) ([]*model.Sheep, error) {
	if _, err := s.authz.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}
	list, err := s.repo.ListByFarm(ctx, farmID, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("家畜記録の取得に失敗しました: %w", err)
	}
	return list, nil
}

// Archive は家畜記録をarchivedにする。記録は削除せず血統参照から解決できるまま残す。
func (s *Service) Archive(ctx context.Context, userID, farmID, sheepID string) error {
	if _, err := s.authz.RequireWriter(ctx, farmID, userID); err != nil {
		return err
	}

	err := s.repo.SetLifecycle(ctx, farmID, sheepID, model.LifecycleArchived)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewSheepNotFoundError(sheepID)
	}
	if err != nil {
		return fmt.Errorf("家畜記録のアーカイブに失敗しました: %w", err)
	}

	s.logger.Info("家畜記録をアーカイブしました",
		slog.String("farm_id", farmID),
		slog.String("sheep_id", sheepID),
	)
	s.publish(farmID, map[string]string{"archived": sheepID})
	return nil
}

// AddHistory は履歴エントリを追加する。日付が空の場合は当日とする。
func (s *Service) AddHistory(ctx context.Context, userID, farmID, sheepID string, in HistoryInput) (*model.SheepHistory, error) {
	if _, err := s.authz.RequireWriter(ctx, farmID, userID); err != nil {
		return nil, err
	}

	title := s.sanitizer.PlainText(in.Title)
	if title == "" {
		return nil, model.NewInvalidHistoryEntryError()
	}
	now := s.now().UTC()
	date, err := parseDateOr("date", in.Date, now)
	if err != nil {
		return nil, model.NewInvalidHistoryEntryError()
	}

	sh, err := s.load(ctx, farmID, sheepID)
	if err != nil {
		return nil, err
	}
	entry := &model.SheepHistory{
		ID:        uuid.New().String(),
		FarmID:    farmID,
		SheepID:   sh.ID,
		Tag:       sh.Tag,
		Title:     title,
		Detail:    s.sanitizer.PlainText(in.Detail),
		Date:      date,
		CreatedAt: now,
	}
	if err := s.repo.AddHistory(ctx, entry); err != nil {
		return nil, fmt.Errorf("履歴の登録に失敗しました: %w", err)
	}

	s.publish(farmID, map[string]string{"history": sh.ID})
	return entry, nil
}

// ListHistory は家畜の履歴を新しい順に返す。
func (s *Service) ListHistory(ctx context.Context, userID, farmID, sheepID string) ([]*model.SheepHistory, error) {
	if _, err := s.authz.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, farmID, sheepID); err != nil {
		return nil, err
	}
	list, err := s.repo.ListHistory(ctx, farmID, sheepID)
	if err != nil {
		return nil, fmt.Errorf("履歴の取得に失敗しました: %w", err)
	}
	return list, nil
}

// Genealogy は両親と祖父母を耳標番号で解決する。archivedの記録も対象とする。
func (s *Service) Genealogy(ctx context.Context, userID, farmID, sheepID string) (*Genealogy, error) {
	if _, err := s.authz.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}

	sh, err := s.load(ctx, farmID, sheepID)
	if err != nil {
		return nil, err
	}
	g := &Genealogy{Sheep: sh}

	parents, err := s.findTags(ctx, farmID, sh.MotherTag, sh.FatherTag)
	if err != nil {
		return nil, err
	}
	g.Mother = parents[sh.MotherTag]
	g.Father = parents[sh.FatherTag]

	var grand []string
	for _, p := range []*model.Sheep{g.Mother, g.Father} {
		if p != nil {
			grand = append(grand, p.MotherTag, p.FatherTag)
		}
	}
	grandparents, err := s.findTags(ctx, farmID, grand...)
	if err != nil {
		return nil, err
	}
	if g.Mother != nil {
		g.MaternalGrandmother = grandparents[g.Mother.MotherTag]
		g.MaternalGrandfather = grandparents[g.Mother.FatherTag]
	}
	if g.Father != nil {
		g.PaternalGrandmother = grandparents[g.Father.MotherTag]
		g.PaternalGrandfather = grandparents[g.Father.FatherTag]
	}
	return g, nil
}

// findTags は空でない耳標番号だけを検索する。検索対象がない場合はリポジトリを呼ばない。
func (s *Service) findTags(ctx context.Context, farmID string, tags ...string) (map[string]*model.Sheep, error) {
	var wanted []string
	for _, t := range tags {
		if t != "" {
			wanted = append(wanted, t)
		}
	}
	if len(wanted) == 0 {
		return map[string]*model.Sheep{}, nil
	}
	found, err := s.repo.FindByTags(ctx, farmID, wanted)
	if err != nil {
		return nil, fmt.Errorf("血統の取得に失敗しました: %w", err)
	}
	return found, nil
}

func (s *Service) load(ctx context.Context, farmID, sheepID string) (*model.Sheep, error) {
	sh, err := s.repo.FindByID(ctx, farmID, sheepID)
	if err != nil {
		return nil, fmt.Errorf("家畜記録の取得に失敗しました: %w", err)
	}
	if sh == nil {
		return nil, model.NewSheepNotFoundError(sheepID)
	}
	return sh, nil
}

// apply は入力を検証し、体重以外の属性をshに反映する。
func (s *Service) apply(sh *model.Sheep, in Input) error {
	tag := strings.TrimSpace(in.Tag)
	if tag == "" {
		return model.NewInvalidTagError()
	}
	sex, err := parseSex(in.Sex)
	if err != nil {
		return err
	}
	birth, err := parseOptionalDate("birth_date", in.BirthDate)
	if err != nil {
		return err
	}
	lastBirth, err := parseOptionalDate("last_birth", in.LastBirth)
	if err != nil {
		return err
	}
	lastInsem, err := parseOptionalDate("last_insemination", in.LastInsemination)
	if err != nil {
		return err
	}
	expected, err := parseOptionalDate("expected_birth_date", in.ExpectedBirthDate)
	if err != nil {
		return err
	}

	sh.Tag = tag
	sh.Sex = sex
	sh.BirthDate = birth
	sh.Breed = s.sanitizer.PlainText(in.Breed)
	sh.MotherTag = strings.TrimSpace(in.MotherTag)
	sh.FatherTag = strings.TrimSpace(in.FatherTag)
	sh.MilkProduction = s.sanitizer.PlainText(in.MilkProduction)
	sh.Diseases = s.sanitizer.PlainText(in.Diseases)
	sh.Reproductive = model.Reproductive{
		Pregnant:          in.Pregnant,
		LastBirth:         lastBirth,
		LastInsemination:  lastInsem,
		ExpectedBirthDate: expected,
	}
	return nil
}

func (s *Service) publish(farmID string, data any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(events.FarmTopic(farmID), events.Event{
		Type:   events.TypeSheepChanged,
		FarmID: farmID,
		Data:   data,
	})
}

// insertByDate は日付昇順を保ったままentryを挿入する。同じ日付の場合は後ろに置く。
func insertByDate(weights []model.WeightEntry, entry model.WeightEntry) []model.WeightEntry {
	i := len(weights)
	for i > 0 && weights[i-1].Date.After(entry.Date) {
		i--
	}
	out := make([]model.WeightEntry, 0, len(weights)+1)
	out = append(out, weights[:i]...)
	out = append(out, entry)
	return append(out, weights[i:]...)
}
