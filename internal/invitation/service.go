// Package invitation は農場への招待の作成と応答を提供する。
// 招待は pending から accepted / declined への一方向にのみ遷移する。
package invitation

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
)

// OwnerChecker は操作者が農場のオーナーであることを確認する。
type OwnerChecker interface {
	RequireOwner(ctx context.Context, farmID, userID string) error
}

// Service は招待のサービス層。
type Service struct {
	repo      repository.InvitationRepository
	settings  repository.SettingsRepository
	owners    OwnerChecker
	publisher events.Publisher
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	repo repository.InvitationRepository,
	settings repository.SettingsRepository,
	owners OwnerChecker,
	publisher events.Publisher,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		repo:      repo,
		settings:  settings,
		owners:    owners,
		publisher: publisher,
		metrics:   collector,
		logger:    logger,
		now:       time.Now,
	}
}

// Invite は農場への招待を作成する。roleが空の場合はeditorとする。
// オーナーであることは書き込みと同じSQL文でも再検証される。
func (s *Service) Invite(ctx context.Context, actor *model.User, farmID, email string, role model.Role) (*model.Invitation, error) {
	if err := s.owners.RequireOwner(ctx, farmID, actor.ID); err != nil {
		return nil, err
	}

	email = strings.TrimSpace(email)
	if !model.ValidEmail(email) {
		return nil, model.NewInvalidEmailError()
	}
	if role == "" {
		role = model.RoleEditor
	}
	if !role.IsAssignable() {
		return nil, model.NewInvalidRoleError(string(role))
	}

	inv := &model.Invitation{
		ID:             uuid.New().String(),
		FarmID:         farmID,
		Email:          email,
		EmailLower:     model.NormalizeEmail(email),
		Role:           role,
		InvitedBy:      actor.ID,
		InvitedByEmail: actor.Email,
		CreatedAt:      s.now().UTC(),
	}

	err := s.repo.CreateByOwner(ctx, inv)
	if errors.Is(err, repository.ErrStaleWrite) {
		return nil, model.NewNotFarmOwnerError()
	}
	if err != nil {
		return nil, fmt.Errorf("招待の作成に失敗しました: %w", err)
	}

	s.metrics.RecordInvitation("created")
	s.logger.Info("招待を作成しました",
		slog.String("farm_id", farmID),
		slog.String("invitation_id", inv.ID),
		slog.String("role", string(role)),
	)
	s.publish(events.InviteeTopic(inv.EmailLower), events.TypeInvitationCreated, farmID, map[string]string{
		"id":        inv.ID,
		"farm_name": inv.FarmName,
	})
	return inv, nil
}

// ListPending はユーザー宛の保留中の招待を新しい順に返す。
func (s *Service) ListPending(ctx context.Context, user *model.User) ([]*model.Invitation, error) {
	invs, err := s.repo.ListPendingByEmail(ctx, model.NormalizeEmail(user.Email))
	if err != nil {
		return nil, fmt.Errorf("招待一覧の取得に失敗しました: %w", err)
	}
	return invs, nil
}

// Accept は招待を承諾し、招待時の役割でメンバーに追加する。
// 承諾した農場はユーザーの選択中の農場になる。
func (s *Service) Accept(ctx context.Context, user *model.User, inviteID string) (*model.Invitation, error) {
	inv, err := s.loadForInvitee(ctx, user, inviteID)
	if err != nil {
		return nil, err
	}

	role := inv.Role
	if role == "" {
		role = model.RoleEditor
	}
	now := s.now().UTC()
	member := model.Member{
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.Name,
		Role:        role,
		JoinedAt:    now,
	}

	if err := s.resolveErr(s.repo.Accept(ctx, inviteID, member, now), inviteID); err != nil {
		return nil, err
	}
	if err := s.settings.SaveSelectedFarm(ctx, user.ID, inv.FarmID); err != nil {
		return nil, fmt.Errorf("選択中の農場の保存に失敗しました: %w", err)
	}

	inv.Status = model.InvitationAccepted
	inv.RespondedAt = &now

	s.metrics.RecordInvitation("accepted")
	s.logger.Info("招待が承諾されました",
		slog.String("farm_id", inv.FarmID),
		slog.String("invitation_id", inv.ID),
		slog.String("user_id", user.ID),
	)
	s.publish(events.FarmTopic(inv.FarmID), events.TypeMembersChanged, inv.FarmID, map[string]string{
		"user_id": user.ID,
		"role":    string(role),
	})
	s.publish(events.InviteeTopic(inv.EmailLower), events.TypeInvitationResolved, inv.FarmID, map[string]string{
		"id":     inv.ID,
		"status": string(inv.Status),
	})
	return inv, nil
}

// Decline は招待を辞退する。メンバーシップは変更しない。
func (s *Service) Decline(ctx context.Context, user *model.User, inviteID string) (*model.Invitation, error) {
	inv, err := s.loadForInvitee(ctx, user, inviteID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.resolveErr(s.repo.Decline(ctx, inviteID, now), inviteID); err != nil {
		return nil, err
	}

	inv.Status = model.InvitationDeclined
	inv.RespondedAt = &now

	s.metrics.RecordInvitation("declined")
	s.logger.Info("招待が辞退されました",
		slog.String("farm_id", inv.FarmID),
		slog.String("invitation_id", inv.ID),
	)
	s.publish(events.InviteeTopic(inv.EmailLower), events.TypeInvitationResolved, inv.FarmID, map[string]string{
		"id":     inv.ID,
		"status": string(inv.Status),
	})
	return inv, nil
}

// loadForInvitee は招待を取得し、ユーザーが招待先本人であることを確認する。
// 他人宛の招待は存在を明かさずINVITATION_NOT_FOUNDとする。
func (s *Service) loadForInvitee(ctx context.Context, user *model.User, inviteID string) (*model.Invitation, error) {
	inv, err := s.repo.FindByID(ctx, inviteID)
	if err != nil {
		return nil, fmt.Errorf("招待の取得に失敗しました: %w", err)
	}
	if inv == nil || inv.EmailLower != model.NormalizeEmail(user.Email) {
		return nil, model.NewInvitationNotFoundError(inviteID)
	}
	if inv.Status != model.InvitationPending {
		return nil, model.NewInvitationResolvedError()
	}
	return inv, nil
}

func (s *Service) resolveErr(err error, inviteID string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotPending):
		return model.NewInvitationResolvedError()
	case errors.Is(err, repository.ErrNotFound):
		return model.NewInvitationNotFoundError(inviteID)
	default:
		return fmt.Errorf("招待への応答に失敗しました: %w", err)
	}
}

func (s *Service) publish(topic, eventType, farmID string, data any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(topic, events.Event{
		Type:   eventType,
		FarmID: farmID,
		Data:   data,
	})
}
