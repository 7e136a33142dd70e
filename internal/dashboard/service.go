// Package dashboard は農場ごとの概況（家畜数、当月の降水量、直近のタスク）を集計する。
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/nimbo/internal/model"
	"github.com/hitoshi/nimbo/internal/rainfall"
	"github.com/hitoshi/nimbo/internal/repository"
)

// upcomingTasks は表示する未完了タスクの件数。
const upcomingTasks = 5

// Authorizer は農場の閲覧権限を判定する。
type Authorizer interface {
	RequireMember(ctx context.Context, farmID, userID string) (model.Role, error)
}

// Summary は農場の概況を表す。
type Summary struct {
	FarmID        string                `json:"farm_id"`
	ActiveSheep   int                   `json:"active_sheep"`
	PregnantSheep int                   `json:"pregnant_sheep"`
	Rainfall      rainfall.MonthSummary `json:"rainfall"`
	UpcomingTasks []*model.Task         `json:"upcoming_tasks"`
}

// Service は概況集計のサービス層。
type Service struct {
	sheep    repository.SheepRepository
	rainfall repository.RainfallRepository
	tasks    repository.TaskRepository
	authz    Authorizer
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	sheep repository.SheepRepository,
	rain repository.RainfallRepository,
	tasks repository.TaskRepository,
	authz Authorizer,
) *Service {
	return &Service{
		sheep:    sheep,
		rainfall: rain,
		tasks:    tasks,
		authz:    authz,
		now:      time.Now,
	}
}

// Summary は農場の概況を返す。降水量は当月（UTC）の記録を集計する。
func (s *Service) Summary(ctx context.Context, userID, farmID string) (*Summary, error) {
	if _, err := s.authz.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}

	total, pregnant, err := s.sheep.CountActive(ctx, farmID)
	if err != nil {
		return nil, fmt.Errorf("家畜数の集計に失敗しました: %w", err)
	}

	now := s.now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	records, err := s.rainfall.ListByFarm(ctx, farmID, from, from.AddDate(0, 1, 0))
	if err != nil {
		return nil, fmt.Errorf("降水記録の取得に失敗しました: %w", err)
	}

	tasks, err := s.tasks.ListByFarm(ctx, farmID, true, upcomingTasks)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}

	return &Summary{
		FarmID:        farmID,
		ActiveSheep:   total,
		PregnantSheep: pregnant,
		Rainfall:      rainfall.Summarize(records, now.Year(), now.Month()),
		UpcomingTasks: tasks,
	}, nil
}
