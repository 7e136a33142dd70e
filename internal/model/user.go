// Package model はドメインモデルを定義する。
package model

import (
	"net/mail"
	"strings"
	"time"
)

// UserRole はシステム全体でのユーザー種別を表す。
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// User はサービス利用ユーザーを表す。
// 新規登録直後は未承認であり、承認されるまで農場機能は利用できない。
type User struct {
	ID           string
	Email        string // 正規化済み（小文字・前後空白除去）
	Name         string
	PasswordHash string // Googleログインのみのユーザーは空
	IsApproved   bool
	Role         UserRole
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// UserSettings はユーザーごとの永続化された設定を表す。
// Locationは {lat, lon} のJSON、SelectedFarmIDは前回選択した農場。
type UserSettings struct {
	UserID         string
	Location       []byte
	SelectedFarmID string
	UpdatedAt      time.Time
}

// NormalizeEmail はメールアドレスを照合用に正規化する（前後空白除去・小文字化）。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail はメールアドレスとして解釈できる形式かを返す。
// 表示名付きの形式（"Ana <ana@example.com>"）は受け付けない。
func ValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}
