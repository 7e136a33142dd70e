package mail

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/nimbo/internal/metrics"
	"github.com/hitoshi/nimbo/internal/model"
	"github.com/hitoshi/nimbo/internal/security"
)

// DefaultName は宛名が未指定の場合の呼称。
const DefaultName = "Productor"

// Sender はメール送信を抽象化する。
type Sender interface {
	Configured() bool
	Send(ctx context.Context, msg Message) error
}

// Service はトランザクションメールのサービス層。
type Service struct {
	sender    Sender
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	baseURL   string
	now       func() time.Time
}

// NewService はServiceを生成する。baseURLはメール内リンクの基準URL。
func NewService(sender Sender, sanitizer security.TextSanitizer, collector metrics.MetricsCollector, logger *slog.Logger, baseURL string) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		sender:    sender,
		sanitizer: sanitizer,
		metrics:   collector,
		logger:    logger,
		baseURL:   strings.TrimRight(baseURL, "/"),
		now:       time.Now,
	}
}

// SendWelcome は登録完了メールを送信する。nameが空の場合はDefaultNameを使う。
func (s *Service) SendWelcome(ctx context.Context, email, name string) error {
	if !s.sender.Configured() {
		s.metrics.RecordEmail("welcome", "not_configured")
		return model.NewEmailNotConfiguredError()
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return model.NewInvalidEmailError()
	}

	safeName := s.sanitizer.PlainText(name)
	if safeName == "" {
		safeName = DefaultName
	}

	html, err := renderWelcome(safeName, s.baseURL+"/login", s.now())
	if err != nil {
		return err
	}
	return s.send(ctx, "welcome", Message{To: email, Subject: WelcomeSubject, HTML: html})
}

// SendPasswordReset はパスワード再設定リンクを送信する。
func (s *Service) SendPasswordReset(ctx context.Context, email, token string, validFor time.Duration) error {
	if !s.sender.Configured() {
		s.metrics.RecordEmail("password_reset", "not_configured")
		return model.NewEmailNotConfiguredError()
	}

	html, err := renderReset(s.baseURL+"/reset-password?token="+token, validFor)
	if err != nil {
		return err
	}
	return s.send(ctx, "password_reset", Message{To: email, Subject: ResetSubject, HTML: html})
}

func (s *Service) send(ctx context.Context, kind string, msg Message) error {
	if err := s.sender.Send(ctx, msg); err != nil {
		outcome := "failed"
		if errors.Is(err, ErrNotConfigured) {
			outcome = "not_configured"
		}
		s.metrics.RecordEmail(kind, outcome)
		s.logger.Error("メールの送信に失敗しました",
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		if outcome == "not_configured" {
			return model.NewEmailNotConfiguredError()
		}
		return model.NewEmailFailedError()
	}

	s.metrics.RecordEmail(kind, "sent")
	s.logger.Info("メールを送信しました", slog.String("kind", kind))
	return nil
}
