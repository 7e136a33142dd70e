// Package task は農場の作業予定（タスク）を扱う。
package task

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

// DefaultKind は種別が省略された場合のタスク種別。
const DefaultKind = model.TaskCheckup

// UpcomingLimit はダッシュボードに表示する未完了タスクの件数。
const UpcomingLimit = 5

// Authorizer は農場データへのアクセス権を判定する。
type Authorizer interface {
	RequireMember(ctx context.Context, farmID, userID string) (model.Role, error)
	RequireWriter(ctx context.Context, farmID, userID string) (model.Role, error)
}

// Input はタスクの作成・更新リクエストを表す。
type Input struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
	SheepTag    string `json:"sheep_tag"`
	Completed   bool   `json:"completed"`
}

// Service はタスクのサービス層。
type Service struct {
	repo      repository.TaskRepository
	authz     Authorizer
	sanitizer security.TextSanitizer
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	repo repository.TaskRepository,
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

// Create はタスクを作成する。
func (s *Service) Create(ctx context.Context, userID, farmID string, in Input) (*model.Task, error) {
	if _, err := s.authz.RequireWriter(ctx, farmID, userID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	t := &model.Task{
		ID:        uuid.New().String(),
		FarmID:    farmID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.apply(t, in); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}

	s.logger.Info("タスクを作成しました",
		slog.String("farm_id", farmID),
		slog.String("task_id", t.ID),
	)
	s.publish(farmID, map[string]string{"id": t.ID})
	return t, nil
}

// Update はタスクの内容を更新する。
func (s *Service) Update(ctx context.Context, userID, farmID, taskID string, in Input) (*model.Task, error) {
	if _, err := s.authz.RequireWriter(ctx, farmID, userID); err != nil {
		return nil, err
	}

	t, err := s.repo.FindByID(ctx, farmID, taskID)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	if t == nil {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	if err := s.apply(t, in); err != nil {
		return nil, err
	}
	t.UpdatedAt = s.now().UTC()

	err = s.repo.Update(ctx, t)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}

	s.publish(farmID, map[string]string{"id": t.ID})
	return t, nil
}

// Toggle は完了フラグを反転する。
func (s *Service) Toggle(ctx context.Context, userID, farmID, taskID string) (*model.Task, error) {
	if _, err := s.authz.RequireWriter(ctx, farmID, userID); err != nil {
		return nil, err
	}

	t, err := s.repo.Toggle(ctx, farmID, taskID)
	if err != nil {
		return nil, fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	if t == nil {
		return nil, model.NewTaskNotFoundError(taskID)
	}

	s.publish(farmID, map[string]string{"id": t.ID})
	return t, nil
}

// Delete はタスクを削除する。
func (s *Service) Delete(ctx context.Context, userID, farmID, taskID string) error {
	if _, err := s.authz.RequireWriter(ctx, farmID, userID); err != nil {
		return err
	}

	err := s.repo.Delete(ctx, farmID, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewTaskNotFoundError(taskID)
	}
	if err != nil {
		return fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}

	s.publish(farmID, map[string]string{"deleted": taskID})
	return nil
}

// List はタスクを期日の昇順で返す。pendingOnlyの場合は未完了のみ。
func (s *Service) List(ctx context.Context, userID, farmID string, pendingOnly bool) ([]*model.Task, error) {
	if _, err := s.authz.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}
	list, err := s.repo.ListByFarm(ctx, farmID, pendingOnly, 0)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	return list, nil
}

// apply は入力を検証してtに反映する。
func (s *Service) apply(t *model.Task, in Input) error {
	kind := model.TaskKind(strings.ToLower(strings.TrimSpace(in.Kind)))
	if kind == "" {
		kind = DefaultKind
	}
	if !kind.IsValid() {
		return model.NewInvalidTaskError("kind")
	}

	desc := s.sanitizer.PlainText(in.Description)
	if desc == "" {
		return model.NewInvalidTaskError("description")
	}

	due, err := time.Parse("2006-01-02", strings.TrimSpace(in.DueDate))
	if err != nil {
		return model.NewInvalidTaskError("due_date")
	}

	t.Kind = kind
	t.Description = desc
	t.DueDate = due
	t.SheepTag = strings.TrimSpace(in.SheepTag)
	t.Completed = in.Completed
	return nil
}

func (s *Service) publish(farmID string, data any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(events.FarmTopic(farmID), events.Event{
		Type:   events.TypeTasksChanged,
		FarmID: farmID,
		Data:   data,
	})
}
