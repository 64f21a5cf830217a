package ingest

import (
	"context"
	"log/slog"
	"time"
)

// PipelineRunner はパイプライン実行のインターフェース。
type PipelineRunner interface {
	RunOnce(ctx context.Context) (RunStats, error)
}

// Scheduler は取り込みパイプラインの定期実行を行う。
// 起動直後は短い遅延の後に1回実行し、以降は固定間隔で実行する。
type Scheduler struct {
	pipeline PipelineRunner
	logger   *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(pipeline PipelineRunner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// Start はスケジューラを起動する。コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, startupDelay, interval time.Duration) {
	s.logger.Info("取り込みスケジューラを開始しました",
		slog.Duration("startup_delay", startupDelay),
		slog.Duration("interval", interval),
	)

	// 起動直後の実行はサーバーの立ち上がりを待ってから行う
	startupTimer := time.NewTimer(startupDelay)
	defer startupTimer.Stop()

	select {
	case <-ctx.Done():
		s.logger.Info("取り込みスケジューラを停止しました")
		return
	case <-startupTimer.C:
		s.runCycle(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("取り込みスケジューラを停止しました")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle はパイプラインを1回実行し、結果をログに記録する。
func (s *Scheduler) runCycle(ctx context.Context) {
	if _, err := s.pipeline.RunOnce(ctx); err != nil {
		s.logger.Error("取り込みサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
