// Package auth はメール・パスワード認証、Googleログイン、セッション管理、パスワード再設定を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/nimbo/internal/model"
	"github.com/hitoshi/nimbo/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// Mailer は認証フローから送るメールを抽象化する。
type Mailer interface {
	SendWelcome(ctx context.Context, email, name string) error
	SendPasswordReset(ctx context.Context, email, token string, validFor time.Duration) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// ErrOAuthDisabled はGoogleログインが設定されていないことを示す。
var ErrOAuthDisabled = errors.New("oauth login is not configured")

// Service は認証に関するビジネスロジックを提供する。
// 新規ユーザーは未承認で作成され、承認されるまで農場機能は利用できない。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	mailer      Mailer
	tokens      *ResetTokens
	config      ServiceConfig
	logger      *slog.Logger
	now         func() time.Time
	async       func(func())
}

// NewService はServiceを生成する。oauthがnilの場合はGoogleログインを無効とする。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	mailer Mailer,
	tokens *ResetTokens,
	config ServiceConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		mailer:      mailer,
		tokens:      tokens,
		config:      config,
		logger:      logger,
		now:         time.Now,
		async:       func(f func()) { go f() },
	}
}

// Signup はメールアドレスとパスワードでユーザーを登録し、セッションを発行する。
// 登録完了メールは非同期で送信し、失敗してもログに記録するのみとする。
func (s *Service) Signup(ctx context.Context, email, password, name string) (*model.User, *model.Session, error) {
	email = model.NormalizeEmail(email)
	if !model.ValidEmail(email) {
		return nil, nil, model.NewInvalidEmailError()
	}
	if !validPasswordLength(password) {
		return nil, nil, model.NewWeakPasswordError(MinPasswordLength)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	now := s.now().UTC()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		IsApproved:   false,
		Role:         model.UserRoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.userRepo.Create(ctx, user)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, nil, model.NewEmailTakenError()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("new user signed up", slog.String("user_id", user.ID))
	s.sendWelcome(user)
	return user, session, nil
}

// Login はメールアドレスとパスワードを検証し、セッションを発行する。
// メールアドレスの存在有無はエラーで区別しない。
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	user, err := s.userRepo.FindByEmail(ctx, model.NormalizeEmail(email))
	if err != nil {
		return nil, nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil || !CheckPassword(user.PasswordHash, password) {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	return user, session, nil
}

// OAuthEnabled はGoogleログインが有効かを返す。
func (s *Service) OAuthEnabled() bool {
	return s.oauth != nil
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) (string, error) {
	if s.oauth == nil {
		return "", ErrOAuthDisabled
	}
	return s.oauth.GetLoginURL(state), nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// identityが未登録の場合、同じメールアドレスのユーザーがいれば紐付け、いなければ未承認ユーザーを作成する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if s.oauth == nil {
		return nil, ErrOAuthDisabled
	}

	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var userID string
	switch {
	case identity != nil:
		userID = identity.UserID
	default:
		userID, err = s.linkOrCreate(ctx, info)
		if err != nil {
			return nil, err
		}
	}

	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in",
		slog.String("user_id", userID),
		slog.String("provider", info.Provider),
	)
	return session, nil
}

// linkOrCreate はOAuthのidentityを既存ユーザーに紐付けるか、新規ユーザーとして作成する。
func (s *Service) linkOrCreate(ctx context.Context, info *OAuthUserInfo) (string, error) {
	email := model.NormalizeEmail(info.Email)
	now := s.now().UTC()
	identity := &model.Identity{
		ID:             uuid.New().String(),
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		identity.UserID = existing.ID
		if err := s.identRepo.Create(ctx, identity); err != nil {
			return "", fmt.Errorf("failed to link identity: %w", err)
		}
		return existing.ID, nil
	}

	user := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      strings.TrimSpace(info.Name),
		Role:      model.UserRoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	identity.UserID = user.ID
	if err := s.userRepo.CreateWithIdentity(ctx, user, identity); err != nil {
		return "", fmt.Errorf("failed to create user and identity: %w", err)
	}

	s.logger.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("provider", info.Provider),
	)
	s.sendWelcome(user)
	return user.ID, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session ID is required")
	}
	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
// セッションが存在しない、期限切れ、またはユーザーが削除済みの場合はnilを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// RequestPasswordReset は登録済みのメールアドレスに再設定リンクを送る。
// メールアドレスの存在有無は呼び出し元に明かさない。
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.userRepo.FindByEmail(ctx, model.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		s.logger.Info("password reset requested for unknown email")
		return nil
	}

	token, err := s.tokens.Issue(user.ID, user.PasswordHash)
	if err != nil {
		return err
	}
	if err := s.mailer.SendPasswordReset(ctx, user.Email, token, s.tokens.TTL()); err != nil {
		s.logger.Warn("パスワード再設定メールの送信に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// ConfirmPasswordReset はトークンを検証してパスワードを更新し、全セッションを破棄する。
// トークンは発行時点のパスワードハッシュに紐づくため一度しか使えない。
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	userID, claims, err := s.tokens.Subject(token)
	if err != nil {
		return model.NewInvalidResetTokenError()
	}
	if !validPasswordLength(newPassword) {
		return model.NewWeakPasswordError(MinPasswordLength)
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil || !s.tokens.Matches(claims, user.ID, user.PasswordHash) {
		return model.NewInvalidResetTokenError()
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}
	if err := s.userRepo.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("パスワードの更新に失敗しました: %w", err)
	}
	if err := s.sessionRepo.DeleteByUserID(ctx, user.ID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	s.logger.Info("password reset completed", slog.String("user_id", user.ID))
	return nil
}

// Approve は指定メールアドレスのユーザーを承認する。
func (s *Service) Approve(ctx context.Context, email string) (*model.User, error) {
	user, err := s.userRepo.Approve(ctx, model.NormalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewUserNotFoundError()
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの承認に失敗しました: %w", err)
	}
	s.logger.Info("user approved", slog.String("user_id", user.ID))
	return user, nil
}

func (s *Service) sendWelcome(user *model.User) {
	if s.mailer == nil {
		return
	}
	email, name := user.Email, user.Name
	s.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.mailer.SendWelcome(ctx, email, name); err != nil {
			s.logger.Warn("登録完了メールの送信に失敗しました",
				slog.String("error", err.Error()),
			)
		}
	})
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
