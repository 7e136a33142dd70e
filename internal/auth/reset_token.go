package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// resetPurpose はパスワード再設定トークンの用途を示すクレーム値。
const resetPurpose = "password_reset"

// ErrInvalidResetToken は再設定トークンが無効であることを示す。
var ErrInvalidResetToken = errors.New("invalid password reset token")

// ResetClaims はパスワード再設定トークンのクレーム。
// Fingerprintは発行時点のパスワードハッシュから導出し、パスワード変更後はトークンが無効になる。
type ResetClaims struct {
	jwt.RegisteredClaims
	Purpose     string `json:"purpose"`
	Fingerprint string `json:"fp"`
}

// ResetTokens はパスワード再設定トークンの発行と検証を行う。
type ResetTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewResetTokens はResetTokensを生成する。
func NewResetTokens(secret string, ttl time.Duration) *ResetTokens {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResetTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL はトークンの有効期間を返す。
func (t *ResetTokens) TTL() time.Duration {
	return t.ttl
}

// Issue はユーザーIDと現在のパスワードハッシュに紐づくトークンを発行する。
func (t *ResetTokens) Issue(userID, passwordHash string) (string, error) {
	now := t.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ResetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		Purpose:     resetPurpose,
		Fingerprint: t.fingerprint(userID, passwordHash),
	})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign reset token: %w", err)
	}
	return signed, nil
}

// Subject は署名・有効期限・用途を検証し、トークンのユーザーIDを返す。
func (t *ResetTokens) Subject(tokenString string) (string, *ResetClaims, error) {
	claims := &ResetClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(tok *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return "", nil, ErrInvalidResetToken
	}
	if claims.Purpose != resetPurpose || claims.Subject == "" {
		return "", nil, ErrInvalidResetToken
	}
	return claims.Subject, claims, nil
}

// Matches はクレームの指紋が現在のパスワードハッシュと一致するかを返す。
func (t *ResetTokens) Matches(claims *ResetClaims, userID, passwordHash string) bool {
	want := t.fingerprint(userID, passwordHash)
	return hmac.Equal([]byte(claims.Fingerprint), []byte(want))
}

func (t *ResetTokens) fingerprint(userID, passwordHash string) string {
	mac := hmac.New(sha256.New, t.secret)
	mac.Write([]byte(userID))
	mac.Write([]byte{0})
	mac.Write([]byte(passwordHash))
	return hex.EncodeToString(mac.Sum(nil))[:32]
}
