// Package farm は農場のメンバーシップ、役割による認可、選択中の農場の解決を提供する。
package farm

import (
	"context"
	"fmt"

	"github.com/hitoshi/nimbo/internal/model"
	"github.com/hitoshi/nimbo/internal/repository"
)

// Authorizer は農場データへのアクセス権をメンバーレコードから判定する。
// 降水記録、家畜、タスク、ダッシュボードの各サービスから利用される。
type Authorizer struct {
	repo repository.FarmRepository
}

// NewAuthorizer はAuthorizerを生成する。
func NewAuthorizer(repo repository.FarmRepository) *Authorizer {
	return &Authorizer{repo: repo}
}

// RequireMember はユーザーが農場のメンバーであることを確認し、その役割を返す。
// 非メンバーには農場の存在を明かさずFARM_NOT_FOUNDを返す。
func (a *Authorizer) RequireMember(ctx context.Context, farmID, userID string) (model.Role, error) {
	if farmID == "" || userID == "" {
		return "", model.NewFarmNotFoundError(farmID)
	}
	member, err := a.repo.FindMember(ctx, farmID, userID)
	if err != nil {
		return "", fmt.Errorf("メンバー情報の取得に失敗しました: %w", err)
	}
	if member == nil {
		return "", model.NewFarmNotFoundError(farmID)
	}
	return member.Role, nil
}

// RequireWriter はユーザーが農場データを変更できる役割（owner/editor）であることを確認する。
func (a *Authorizer) RequireWriter(ctx context.Context, farmID, userID string) (model.Role, error) {
	role, err := a.RequireMember(ctx, farmID, userID)
	if err != nil {
		return "", err
	}
	if !role.CanWrite() {
		return "", model.NewInsufficientRoleError()
	}
	return role, nil
}

// RequireOwner はユーザーが農場のオーナーであることを確認する。
func (a *Authorizer) RequireOwner(ctx context.Context, farmID, userID string) error {
	role, err := a.RequireMember(ctx, farmID, userID)
	if err != nil {
		return err
	}
	if role != model.RoleOwner {
		return model.NewNotFarmOwnerError()
	}
	return nil
}
