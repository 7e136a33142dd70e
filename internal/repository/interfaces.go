// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/nimbo/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は正規化済みメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はパスワード認証のユーザーを作成する。
	// メールアドレスが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdatePasswordHash はパスワードハッシュを更新する。
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error

	// Approve は指定メールアドレスのユーザーを承認済みにする。
	// 見つからない場合はErrNotFoundを返す。
	Approve(ctx context.Context, email string) (*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、user_settingsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create は既存ユーザーにidentityを紐付ける。
	Create(ctx context.Context, identity *model.Identity) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// SettingsRepository はユーザー設定（位置情報、選択中の農場）の永続化インターフェース。
type SettingsRepository interface {
	// Get はユーザー設定を取得する。未保存の場合はnilを返す。
	Get(ctx context.Context, userID string) (*model.UserSettings, error)
	// SaveLocation は位置情報JSONを保存する。nilを渡すと削除する。
	SaveLocation(ctx context.Context, userID string, location []byte) error
	// SaveSelectedFarm は選択中の農場IDを保存する。空文字列を渡すと解除する。
	SaveSelectedFarm(ctx context.Context, userID, farmID string) error
}

// FarmRepository は農場とメンバーシップの永続化インターフェース。
// メンバーシップの変更は操作者がオーナーであることを書き込みと同じSQL文で再検証する。
type FarmRepository interface {
	// CreateWithOwner は農場とオーナーのメンバーレコードを同一トランザクションで作成する。
	CreateWithOwner(ctx context.Context, farm *model.Farm) error

	// FindByID はメンバー一覧付きで農場を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Farm, error)

	// ListByMember はユーザーが所属する農場を作成日時の昇順で返す。
	ListByMember(ctx context.Context, userID string) ([]*model.Farm, error)

	// FindMember は農場のメンバーレコードを取得する。メンバーでない場合はnilを返す。
	FindMember(ctx context.Context, farmID, userID string) (*model.Member, error)

	// UpdateMemberRole は対象メンバーの役割を更新する。
	// actorIDがオーナーでない、または対象がオーナー・非メンバーの場合はErrStaleWriteを返す。
	UpdateMemberRole(ctx context.Context, farmID, actorID, targetID string, role model.Role) error

	// RemoveMember は対象メンバーを農場から削除する。
	// actorIDがオーナーでない、または対象がオーナー・非メンバーの場合はErrStaleWriteを返す。
	RemoveMember(ctx context.Context, farmID, actorID, targetID string) error
}

// InvitationRepository は招待の永続化インターフェース。
type InvitationRepository interface {
	// CreateByOwner は招待を作成する。農場名は書き込み時点の値で非正規化される。
	// InvitedByが農場のオーナーでない場合はErrStaleWriteを返す。
	CreateByOwner(ctx context.Context, inv *model.Invitation) error

	// FindByID は指定IDの招待を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Invitation, error)

	// ListPendingByEmail は正規化済みメールアドレス宛の保留中招待を新しい順に返す。
	ListPendingByEmail(ctx context.Context, emailLower string) ([]*model.Invitation, error)

	// Accept は招待を承諾し、メンバーシップのUPSERTとステータス更新を同一トランザクションで行う。
	// 招待が保留中でない場合はErrNotPending、存在しない場合はErrNotFoundを返す。
	Accept(ctx context.Context, id string, member model.Member, respondedAt time.Time) error

	// Decline は招待を辞退済みにする。
	// 招待が保留中でない場合はErrNotPendingを返す。
	Decline(ctx context.Context, id string, respondedAt time.Time) error
}

// RainfallRepository は降水記録の永続化インターフェース。
type RainfallRepository interface {
	// Create は降水記録を1件作成する。
	Create(ctx context.Context, record *model.Rainfall) error

	// CreateBatch は降水記録を単一トランザクションで一括作成する。
	// 1件でも失敗した場合は全件ロールバックされる。
	CreateBatch(ctx context.Context, records []*model.Rainfall) error

	// ListByFarm は農場の降水記録を日付の降順で返す。
	// from/toがゼロ値の場合はその側の範囲を制限しない。toは含まない。
	ListByFarm(ctx context.Context, farmID string, from, to time.Time) ([]*model.Rainfall, error)

	// Delete は農場の降水記録を削除する。見つからない場合はErrNotFoundを返す。
	Delete(ctx context.Context, farmID, id string) error

	// MonthlyTotals は指定年の月別合計を返す。記録のない月は含まない。
	MonthlyTotals(ctx context.Context, farmID string, year int) ([]model.MonthlyRainfall, error)
}

// SheepRepository は家畜記録の永続化インターフェース。
type SheepRepository interface {
	// Create は家畜記録と初期体重を同一トランザクションで作成する。
	// 耳標番号が重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, sheep *model.Sheep) error

	// Update は家畜記録の属性を更新する。体重と履歴は更新しない。
	// 耳標番号が重複する場合はErrDuplicateを返す。
	Update(ctx context.Context, sheep *model.Sheep) error

	// FindByID は体重履歴付きで家畜記録を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, farmID, id string) (*model.Sheep, error)

	// FindByTags は耳標番号で家畜記録を取得する。archivedの記録も含む。
	FindByTags(ctx context.Context, farmID string, tags []string) (map[string]*model.Sheep, error)

	// ListByFarm は農場の家畜記録を耳標番号順に返す。
	ListByFarm(ctx context.Context, farmID string, includeArchived bool) ([]*model.Sheep, error)

	// AddWeight は体重の計測値を追加する。
	AddWeight(ctx context.Context, sheepID string, entry model.WeightEntry) error

	// SetLifecycle はライフサイクル状態を変更する。見つからない場合はErrNotFoundを返す。
	SetLifecycle(ctx context.Context, farmID, id string, lifecycle model.Lifecycle) error

	// AddHistory は履歴エントリを追加する。
	AddHistory(ctx context.Context, entry *model.SheepHistory) error

	// ListHistory は家畜の履歴エントリを新しい順に返す。
	ListHistory(ctx context.Context, farmID, sheepID string) ([]*model.SheepHistory, error)

	// CountActive はactiveな家畜数と妊娠中の頭数を返す。
	CountActive(ctx context.Context, farmID string) (total int, pregnant int, err error)
}

// TaskRepository はタスクの永続化インターフェース。
type TaskRepository interface {
	// Create はタスクを作成する。
	Create(ctx context.Context, task *model.Task) error
	// Update はタスクの内容を更新する。見つからない場合はErrNotFoundを返す。
	Update(ctx context.Context, task *model.Task) error
	// FindByID はタスクを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, farmID, id string) (*model.Task, error)
	// ListByFarm はタスクを期日の昇順で返す。limitが0以下の場合は制限しない。
	ListByFarm(ctx context.Context, farmID string, pendingOnly bool, limit int) ([]*model.Task, error)
	// Toggle は完了フラグを反転し、反転後のタスクを返す。見つからない場合はnilを返す。
	Toggle(ctx context.Context, farmID, id string) (*model.Task, error)
	// Delete はタスクを削除する。見つからない場合はErrNotFoundを返す。
	Delete(ctx context.Context, farmID, id string) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
