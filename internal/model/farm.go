package model

import "time"

// Role は農場内でのメンバーの役割を表す。
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// IsAssignable は招待・役割変更で指定可能な役割かを返す。
// ownerは農場作成時のみ付与される。
func (r Role) IsAssignable() bool {
	return r == RoleEditor || r == RoleViewer
}

// CanWrite は農場データの変更が許可された役割かを返す。
func (r Role) CanWrite() bool {
	return r == RoleOwner || r == RoleEditor
}

// Member は農場メンバーのレコードを表す。
type Member struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Farm は農場（テナント）を表す。
// オーナーは常にMembersにRoleOwnerとして含まれる。
type Farm struct {
	ID         string
	Name       string
	OwnerID    string
	OwnerEmail string
	Members    map[string]Member // キーはユーザーID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MemberIDs はメンバーのユーザーID一覧を返す。
func (f *Farm) MemberIDs() []string {
	ids := make([]string, 0, len(f.Members))
	for id := range f.Members {
		ids = append(ids, id)
	}
	return ids
}

// RoleOf は指定ユーザーの役割を返す。メンバーでない場合はfalseを返す。
func (f *Farm) RoleOf(userID string) (Role, bool) {
	m, ok := f.Members[userID]
	if !ok {
		return "", false
	}
	return m.Role, true
}
