package ingest

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// fakeRunner は実行回数を数えるPipelineRunner。
type fakeRunner struct {
	runs atomic.Int64
}

func (f *fakeRunner) RunOnce(ctx context.Context) (RunStats, error) {
	f.runs.Add(1)
	return RunStats{}, nil
}

func TestScheduler_RunsAfterStartupDelay(t *testing.T) {
	runner := &fakeRunner{}
	s := NewScheduler(runner, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, 10*time.Millisecond, time.Hour)
		close(done)
	}()

	// 起動遅延の経過を待つ
	deadline := time.After(2 * time.Second)
	for runner.runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("起動遅延後の初回実行が行われなかった")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done

	if got := runner.runs.Load(); got != 1 {
		t.Errorf("実行回数 = %d, want 1", got)
	}
}

func TestScheduler_RunsPeriodically(t *testing.T) {
	runner := &fakeRunner{}
	s := NewScheduler(runner, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, time.Millisecond, 20*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for runner.runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("定期実行が不足している: %d回", runner.runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestScheduler_StopsBeforeFirstRunOnCancel(t *testing.T) {
	runner := &fakeRunner{}
	s := NewScheduler(runner, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		s.Start(ctx, time.Hour, time.Hour)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("キャンセル済みコンテキストで即座に停止しなかった")
	}

	if got := runner.runs.Load(); got != 0 {
		t.Errorf("実行回数 = %d, want 0", got)
	}
}
