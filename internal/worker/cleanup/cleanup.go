// Package cleanup は無効化されたプッシュ購読の自動削除ジョブを提供する。
// 購読解除やプッシュサービス側の失効により無効化された購読のうち、
// 保持期間（デフォルト30日）を超過したものを日次バッチで物理削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SubscriptionPurger は無効購読の削除を抽象化するインターフェース。
type SubscriptionPurger interface {
	DeleteInactiveBefore(ctx context.Context, before time.Time) (int, error)
}

// Job は保持期間を超過した無効購読の自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type Job struct {
	pushRepo  SubscriptionPurger
	logger    *slog.Logger
	Retention time.Duration // 無効購読の保持期間（デフォルト: 30日）
}

// NewJob は新しいJobを生成する。
// デフォルトの保持期間は30日。
func NewJob(pushRepo SubscriptionPurger, logger *slog.Logger) *Job {
	return &Job{
		pushRepo:  pushRepo,
		logger:    logger,
		Retention: 30 * 24 * time.Hour,
	}
}

// Run は保持期間を超過した無効購読を削除する。
// updated_atがRetention前より古い無効購読をDELETEする。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()
	before := start.Add(-j.Retention)

	deletedCount, err := j.pushRepo.DeleteInactiveBefore(ctx, before)
	if err != nil {
		j.logger.Error("購読クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.String("retention", j.Retention.String()),
		)
		return fmt.Errorf("購読クリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("購読クリーンアップジョブが完了しました",
		slog.Int("deleted_count", deletedCount),
		slog.String("retention", j.Retention.String()),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は日次間隔でRunを繰り返し実行する。
// ctxがキャンセルされるまでブロックする。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("購読クリーンアップジョブを停止します")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error("購読クリーンアップの定期実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
