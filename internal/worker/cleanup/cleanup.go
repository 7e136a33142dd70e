// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// 有効期限から保持日数（デフォルト0日）を過ぎたセッションを日次で削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval はジョブの実行間隔。
const DefaultInterval = 24 * time.Hour

// SessionPurger は期限切れセッションの削除を行う依存先。
// repository.PostgresSessionRepoが実装する。
type SessionPurger interface {
	DeleteExpired(ctx context.Context, retention time.Duration) (int64, error)
}

// SessionCleanupJob は期限切れセッションの削除ジョブ。
// 削除は冪等で、対象がなくてもエラーにならない。
type SessionCleanupJob struct {
	sessions      SessionPurger
	logger        *slog.Logger
	RetentionDays int // 有効期限切れ後にセッションを残す日数
}

// NewSessionCleanupJob は新しいSessionCleanupJobを生成する。
func NewSessionCleanupJob(sessions SessionPurger, logger *slog.Logger, retentionDays int) *SessionCleanupJob {
	if retentionDays < 0 {
		retentionDays = 0
	}
	return &SessionCleanupJob{
		sessions:      sessions,
		logger:        logger,
		RetentionDays: retentionDays,
	}
}

// Run は有効期限からRetentionDays日を過ぎたセッションを削除する。
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	retention := time.Duration(j.RetentionDays) * 24 * time.Hour
	deletedCount, err := j.sessions.DeleteExpired(ctx, retention)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回実行し、以降intervalごとにRunを繰り返す。
// ctxがキャンセルされるまでブロックする。個々の実行エラーはログに残して継続する。
func (j *SessionCleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッションクリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
