package model

import "time"

// InvitationStatus は招待の状態を表す。
// pending から accepted / declined への一方向遷移のみ許可される。
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
)

// Invitation は農場への招待を表す。
type Invitation struct {
	ID             string           `json:"id"`
	FarmID         string           `json:"farm_id"`
	FarmName       string           `json:"farm_name"`
	Email          string           `json:"email"` // 入力されたままのメールアドレス（前後空白除去のみ）
	EmailLower     string           `json:"email_lower"`
	Role           Role             `json:"role"`
	Status         InvitationStatus `json:"status"`
	InvitedBy      string           `json:"invited_by"`
	InvitedByEmail string           `json:"invited_by_email"`
	CreatedAt      time.Time        `json:"created_at"`
	RespondedAt    *time.Time       `json:"responded_at"`
}
