package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type failureLog struct {
	mu  sync.Mutex
	ids []string
}

func (f *failureLog) MarkOperationFailed(_ context.Context, id string, _ error) error {
	f.mu.Lock()
	f.ids = append(f.ids, id)
	f.mu.Unlock()
	return nil
}

func (f *failureLog) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

func TestDispatcher_BoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	release := make(chan struct{})
	executor := ExecutorFunc(func(context.Context, ExecutionRequest) error {
		current := running.Add(1)
		for {
			old := peak.Load()
			if current <= old || peak.CompareAndSwap(old, current) {
				break
			}
		}
		<-release
		running.Add(-1)
		return nil
	})
	dispatcher := NewDispatcher(executor, nil, WithDispatchWorkers(2))

	admitted := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			_ = dispatcher.Dispatch(context.Background(), OperationRecord{ID: "op", Type: OperationTypeChat}, nil)
		}
		close(admitted)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-admitted

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := dispatcher.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if peak.Load() > 2 {
		t.Fatalf("expected at most 2 concurrent executions, got %d", peak.Load())
	}
}

func TestDispatcher_FailuresAreRecordedAndPublished(t *testing.T) {
	recorder := &failureLog{}
	boom := errors.New("boom")
	executor := ExecutorFunc(func(_ context.Context, req ExecutionRequest) error {
		if req.OperationID == "bad" {
			return boom
		}
		return nil
	})
	dispatcher := NewDispatcher(executor, recorder, WithDispatchWorkers(1), WithDispatchErrorBuffer(4))

	ctx := context.Background()
	if err := dispatcher.Dispatch(ctx, OperationRecord{ID: "good", Type: OperationTypeChat}, nil); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := dispatcher.Dispatch(ctx, OperationRecord{ID: "bad", Type: OperationTypeChat}, nil); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	select {
	case event := <-dispatcher.Errors():
		if event.OperationID != "bad" || !errors.Is(event, boom) {
			t.Fatalf("unexpected dispatch error %#v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a dispatch error event")
	}

	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := dispatcher.Close(closeCtx); err != nil {
		t.Fatalf("expected failures reported before close to stay out of close, got %v", err)
	}
	if dispatcher.Failures() != 1 {
		t.Fatalf("expected one failure counted, got %d", dispatcher.Failures())
	}
	if ids := recorder.snapshot(); len(ids) != 1 || ids[0] != "bad" {
		t.Fatalf("expected failure recorded for bad, got %#v", ids)
	}
}

func TestDispatcher_CloseReportsFailuresWhileDraining(t *testing.T) {
	boom := errors.New("boom")
	release := make(chan struct{})
	dispatcher := NewDispatcher(ExecutorFunc(func(context.Context, ExecutionRequest) error {
		<-release
		return boom
	}), nil)
	if err := dispatcher.Dispatch(context.Background(), OperationRecord{ID: "slow", Type: OperationTypeChat}, nil); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	closed := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		closed <- dispatcher.Close(ctx)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	if err := <-closed; !errors.Is(err, boom) {
		t.Fatalf("expected close to report the failure seen while draining, got %v", err)
	}
}

func TestDispatcher_LongRunningFailuresAreNotRetained(t *testing.T) {
	boom := errors.New("boom")
	dispatcher := NewDispatcher(ExecutorFunc(func(context.Context, ExecutionRequest) error {
		return boom
	}), nil, WithDispatchErrorBuffer(1))
	for i := 0; i < 500; i++ {
		if err := dispatcher.Dispatch(context.Background(), OperationRecord{ID: "op", Type: OperationTypeChat}, nil); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for dispatcher.Failures() < 500 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 500 failures, got %d", dispatcher.Failures())
		}
		time.Sleep(5 * time.Millisecond)
	}

	dispatcher.mu.Lock()
	retained := dispatcher.drainErr
	dispatcher.mu.Unlock()
	if retained != nil {
		t.Fatalf("expected no failures retained before close")
	}
	if err := dispatcher.Close(context.Background()); err != nil {
		t.Fatalf("expected close to report nothing new, got %v", err)
	}
}

func TestDispatcher_TaskOutlivesCallerContext(t *testing.T) {
	done := make(chan error, 1)
	executor := ExecutorFunc(func(ctx context.Context, _ ExecutionRequest) error {
		time.Sleep(10 * time.Millisecond)
		done <- ctx.Err()
		return nil
	})
	dispatcher := NewDispatcher(executor, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := dispatcher.Dispatch(ctx, OperationRecord{ID: "op-1", Type: OperationTypeChat}, nil); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected task context to survive caller cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected executor to run")
	}
	_ = dispatcher.Close(context.Background())
}

func TestDispatcher_RejectsAfterClose(t *testing.T) {
	dispatcher := NewDispatcher(ExecutorFunc(func(context.Context, ExecutionRequest) error { return nil }), nil)
	if err := dispatcher.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := dispatcher.Dispatch(context.Background(), OperationRecord{ID: "op-1"}, nil); err == nil {
		t.Fatalf("expected dispatch after close to fail")
	}
	if _, open := <-dispatcher.Errors(); open {
		t.Fatalf("expected errors channel to be closed")
	}
}

func TestDispatcher_RequiresExecutor(t *testing.T) {
	dispatcher := NewDispatcher(nil, nil)
	if err := dispatcher.Dispatch(context.Background(), OperationRecord{ID: "op-1"}, nil); !errors.Is(err, ErrExecutorNotConfigured) {
		t.Fatalf("expected executor not configured, got %v", err)
	}
}
