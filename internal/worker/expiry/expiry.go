// Package expiry は期限切れトークンの自動失効ジョブを提供する。
// 保存済みトークンのexpを定期的に確認し、期限を過ぎていれば
// APIを呼ぶ前にセッションを失効させる。
package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionGate はジョブが必要とするセッションゲートのインターフェース。
type SessionGate interface {
	Token() string
	// ExpireToken は現在のトークンがtokenと一致する場合に限り失効させる。
	ExpireToken(ctx context.Context, token string) (bool, error)
}

// ExpiredFunc はトークンがnow時点で期限切れかを判定する。
type ExpiredFunc func(token string, now time.Time) bool

// ExpiryJob は期限切れトークンの失効ジョブ。
// 冪等で、未認証やexpを持たないトークンでは何もしない。
type ExpiryJob struct {
	gate    SessionGate
	expired ExpiredFunc
	logger  *slog.Logger
	now     func() time.Time
}

// NewExpiryJob は新しいExpiryJobを生成する。
func NewExpiryJob(gate SessionGate, expired ExpiredFunc, logger *slog.Logger) *ExpiryJob {
	return &ExpiryJob{
		gate:    gate,
		expired: expired,
		logger:  logger,
		now:     time.Now,
	}
}

// Run は現在のトークンを1回確認し、期限切れであれば失効させる。
// 失効させた場合はtrueを返す。
func (j *ExpiryJob) Run(ctx context.Context) (bool, error) {
	token := j.gate.Token()
	if token == "" || !j.expired(token, j.now()) {
		return false, nil
	}

	expired, err := j.gate.ExpireToken(ctx, token)
	if err != nil {
		j.logger.Error("failed to expire session",
			slog.String("error", err.Error()),
		)
		return expired, fmt.Errorf("expire session: %w", err)
	}
	if expired {
		j.logger.Info("expired session released")
	}
	return expired, nil
}

// Start はintervalごとにRunを実行する。ctxがキャンセルされるまでブロックする。
// 起動直後にも1回実行する。
func (j *ExpiryJob) Start(ctx context.Context, interval time.Duration) {
	j.logger.Info("session expiry job starting",
		slog.Duration("interval", interval),
	)

	j.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("session expiry job stopped")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *ExpiryJob) runOnce(ctx context.Context) {
	// エラーはRun内で記録済み
	_, _ = j.Run(ctx)
}
