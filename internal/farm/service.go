package farm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/nimbo/internal/events"
	"github.com/hitoshi/nimbo/internal/model"
	"github.com/hitoshi/nimbo/internal/repository"
	"github.com/hitoshi/nimbo/internal/security"
)

// Service は農場とメンバーシップのサービス層。
// メンバーの役割変更・削除はオーナーのみ実行でき、オーナー自身は対象にできない。
type Service struct {
	repo      repository.FarmRepository
	settings  repository.SettingsRepository
	sanitizer security.TextSanitizer
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	repo repository.FarmRepository,
	settings repository.SettingsRepository,
	sanitizer security.TextSanitizer,
	publisher events.Publisher,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		settings:  settings,
		sanitizer: sanitizer,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateFarm は農場を作成し、作成者を唯一のオーナーとして登録する。
// 作成した農場は作成者の選択中の農場として保存される。
func (s *Service) CreateFarm(ctx context.Context, owner *model.User, name string) (*model.Farm, error) {
	name = s.sanitizer.PlainText(name)
	if name == "" {
		return nil, model.NewInvalidFarmNameError()
	}

	now := s.now().UTC()
	farm := &model.Farm{
		ID:         uuid.New().String(),
		Name:       name,
		OwnerID:    owner.ID,
		OwnerEmail: owner.Email,
		Members: map[string]model.Member{
			owner.ID: {
				UserID:      owner.ID,
				Email:       owner.Email,
				DisplayName: owner.Name,
				Role:        model.RoleOwner,
				JoinedAt:    now,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateWithOwner(ctx, farm); err != nil {
		return nil, fmt.Errorf("農場の作成に失敗しました: %w", err)
	}
	if err := s.settings.SaveSelectedFarm(ctx, owner.ID, farm.ID); err != nil {
		return nil, fmt.Errorf("選択中の農場の保存に失敗しました: %w", err)
	}

	s.logger.Info("農場を作成しました",
		slog.String("farm_id", farm.ID),
		slog.String("user_id", owner.ID),
	)
	return farm, nil
}

// List はユーザーが所属する農場を作成日時の昇順で返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Farm, error) {
	farms, err := s.repo.ListByMember(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("農場一覧の取得に失敗しました: %w", err)
	}
	return farms, nil
}

// Get はメンバー一覧付きで農場を返す。非メンバーにはFARM_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, userID, farmID string) (*model.Farm, error) {
	farm, err := s.repo.FindByID(ctx, farmID)
	if err != nil {
		return nil, fmt.Errorf("農場の取得に失敗しました: %w", err)
	}
	if farm == nil {
		return nil, model.NewFarmNotFoundError(farmID)
	}
	if _, ok := farm.RoleOf(userID); !ok {
		return nil, model.NewFarmNotFoundError(farmID)
	}
	return farm, nil
}

// ChangeMemberRole はメンバーの役割を変更する。
// 検証順序: 操作者がオーナー → 対象がメンバー → 対象がオーナーでない。
func (s *Service) ChangeMemberRole(ctx context.Context, actorID, farmID, targetID string, role model.Role) error {
	farm, err := s.requireOwner(ctx, actorID, farmID)
	if err != nil {
		return err
	}

	targetRole, ok := farm.RoleOf(targetID)
	if !ok {
		return model.NewMemberNotFoundError(targetID)
	}
	if targetRole == model.RoleOwner {
		return model.NewOwnerImmutableError()
	}
	if !role.IsAssignable() {
		return model.NewInvalidRoleError(string(role))
	}

	err = s.repo.UpdateMemberRole(ctx, farmID, actorID, targetID, role)
	if errors.Is(err, repository.ErrStaleWrite) {
		return model.NewStaleMembershipError()
	}
	if err != nil {
		return fmt.Errorf("役割の更新に失敗しました: %w", err)
	}

	s.logger.Info("メンバーの役割を変更しました",
		slog.String("farm_id", farmID),
		slog.String("target_id", targetID),
		slog.String("role", string(role)),
	)
	s.publish(farmID, map[string]string{"user_id": targetID, "role": string(role)})
	return nil
}

// RemoveMember はメンバーを農場から削除する。
// 検証順序: 操作者がオーナー → 対象がオーナーでない → 対象がメンバー。
func (s *Service) RemoveMember(ctx context.Context, actorID, farmID, targetID string) error {
	farm, err := s.requireOwner(ctx, actorID, farmID)
	if err != nil {
		return err
	}

	if targetID == farm.OwnerID {
		return model.NewOwnerImmutableError()
	}
	targetRole, ok := farm.RoleOf(targetID)
	if targetRole == model.RoleOwner {
		return model.NewOwnerImmutableError()
	}
	if !ok {
		return model.NewMemberNotFoundError(targetID)
	}

	err = s.repo.RemoveMember(ctx, farmID, actorID, targetID)
	if errors.Is(err, repository.ErrStaleWrite) {
		return model.NewStaleMembershipError()
	}
	if err != nil {
		return fmt.Errorf("メンバーの削除に失敗しました: %w", err)
	}

	s.logger.Info("メンバーを削除しました",
		slog.String("farm_id", farmID),
		slog.String("target_id", targetID),
	)
	s.publish(farmID, map[string]string{"removed": targetID})
	return nil
}

// ResolveActive は保存済みの選択と所属農場一覧から選択中の農場を決定し、結果を保存する。
// 所属農場がない場合はnilを返す。
func (s *Service) ResolveActive(ctx context.Context, userID string) (*model.Farm, error) {
	farms, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	settings, err := s.settings.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザー設定の取得に失敗しました: %w", err)
	}
	var stored string
	if settings != nil {
		stored = settings.SelectedFarmID
	}

	active := SelectActive(stored, farms)
	if active == nil {
		return nil, nil
	}
	if active.ID != stored {
		if err := s.settings.SaveSelectedFarm(ctx, userID, active.ID); err != nil {
			return nil, fmt.Errorf("選択中の農場の保存に失敗しました: %w", err)
		}
	}
	return active, nil
}

// SetActive は所属農場を選択中の農場として保存する。
func (s *Service) SetActive(ctx context.Context, userID, farmID string) (*model.Farm, error) {
	farm, err := s.Get(ctx, userID, farmID)
	if err != nil {
		return nil, err
	}
	if err := s.settings.SaveSelectedFarm(ctx, userID, farmID); err != nil {
		return nil, fmt.Errorf("選択中の農場の保存に失敗しました: %w", err)
	}
	return farm, nil
}

// requireOwner は農場を取得し、操作者がオーナーであることを確認する。
func (s *Service) requireOwner(ctx context.Context, actorID, farmID string) (*model.Farm, error) {
	farm, err := s.Get(ctx, actorID, farmID)
	if err != nil {
		return nil, err
	}
	if role, _ := farm.RoleOf(actorID); role != model.RoleOwner {
		return nil, model.NewNotFarmOwnerError()
	}
	return farm, nil
}

func (s *Service) publish(farmID string, data any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(events.FarmTopic(farmID), events.Event{
		Type:   events.TypeMembersChanged,
		FarmID: farmID,
		Data:   data,
	})
}
