// Package cleanup はログアウトされずに残ったセッションレコードを閉じるジョブを提供する。
// ブラウザを閉じただけのユーザーはlogout_timeが設定されないため、
// セッション有効期限を過ぎた行にlogin_time+有効期限をログアウト時刻として記録する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SessionSweepJob は有効期限切れの未ログアウトセッションを閉じるジョブ。
// 既にlogout_timeが設定された行は更新しないため、何度実行しても結果は変わらない。
type SessionSweepJob struct {
	db     Executor
	logger *slog.Logger
	MaxAge time.Duration // セッションの有効期限（デフォルト: 24時間）
}

// NewSessionSweepJob は新しいSessionSweepJobを生成する。
// maxAgeが0以下の場合は24時間を使用する。
func NewSessionSweepJob(db Executor, logger *slog.Logger, maxAge time.Duration) *SessionSweepJob {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &SessionSweepJob{
		db:     db,
		logger: logger,
		MaxAge: maxAge,
	}
}

// Start は起動直後に1回実行し、以降interval間隔で実行を繰り返す。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *SessionSweepJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		j.logger.Info("セッション掃除ジョブは無効です")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("セッション掃除ジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("max_age", j.MaxAge),
	)

	// 起動直後に1回実行（エラーはRun内でログ出力済み）
	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッション掃除ジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}

// Run はlogin_timeから有効期限を過ぎた未ログアウトのセッションを閉じる。
// 冪等: 対象がない場合でもエラーにならない。
func (j *SessionSweepJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d seconds", int64(j.MaxAge/time.Second))

	query := `UPDATE sessions
		SET logout_time = login_time + $1::interval
		WHERE logout_time IS NULL AND login_time < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("セッション掃除ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("max_age", j.MaxAge),
		)
		return fmt.Errorf("セッション掃除の実行に失敗: %w", err)
	}

	closedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("更新件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("セッション掃除ジョブが完了しました",
		slog.Int64("closed_count", closedCount),
		slog.Duration("max_age", j.MaxAge),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
