package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type statusStep struct {
	status OperationStatus
	found  bool
	err    error
}

type scriptedStatusReader struct {
	mu    sync.Mutex
	steps []statusStep
	reads int
}

func (r *scriptedStatusReader) GetOperationStatus(context.Context, string) (OperationStatus, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if len(r.steps) == 0 {
		return OperationStatusProcessing, true, nil
	}
	step := r.steps[0]
	if len(r.steps) > 1 {
		r.steps = r.steps[1:]
	}
	return step.status, step.found, step.err
}

func (r *scriptedStatusReader) readCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

func waitPollDone(t *testing.T, handle *PollHandle) {
	t.Helper()
	select {
	case <-handle.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected polling to stop")
	}
}

func TestStatusPoller_StopsOnTerminal(t *testing.T) {
	reader := &scriptedStatusReader{steps: []statusStep{
		{found: false},
		{status: OperationStatusPending, found: true},
		{status: OperationStatusPending, found: true},
		{status: OperationStatusCompleted, found: true},
	}}
	poller := NewStatusPoller(reader, time.Millisecond, 2*time.Millisecond)

	var mu sync.Mutex
	var seen []OperationStatus
	handle, err := poller.Poll(context.Background(), "op-1", 0, func(status OperationStatus) {
		mu.Lock()
		seen = append(seen, status)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	waitPollDone(t, handle)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != OperationStatusPending || seen[1] != OperationStatusCompleted {
		t.Fatalf("expected pending then completed, got %#v", seen)
	}
	if last, ok := handle.Last(); !ok || last != OperationStatusCompleted {
		t.Fatalf("expected last status completed, got %q", last)
	}
	if handle.Err() != nil {
		t.Fatalf("expected no poll error, got %v", handle.Err())
	}
	reads := reader.readCount()
	time.Sleep(10 * time.Millisecond)
	if reader.readCount() != reads {
		t.Fatalf("expected no reads after a terminal status")
	}
}

func TestStatusPoller_ReadErrorStops(t *testing.T) {
	readErr := errors.New("store offline")
	reader := &scriptedStatusReader{steps: []statusStep{{err: readErr}}}
	poller := NewStatusPoller(reader, 0, time.Millisecond)

	var reported error
	var mu sync.Mutex
	poller.OnError = func(_ string, err error) {
		mu.Lock()
		reported = err
		mu.Unlock()
	}
	handle, err := poller.Poll(context.Background(), "op-1", 0, nil)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	waitPollDone(t, handle)

	if !errors.Is(handle.Err(), readErr) {
		t.Fatalf("expected read error on handle, got %v", handle.Err())
	}
	mu.Lock()
	defer mu.Unlock()
	if !errors.Is(reported, readErr) {
		t.Fatalf("expected read error to be reported, got %v", reported)
	}
	if reader.readCount() != 1 {
		t.Fatalf("expected a single read, got %d", reader.readCount())
	}
}

func TestStatusPoller_CancelStops(t *testing.T) {
	reader := &scriptedStatusReader{}
	poller := NewStatusPoller(reader, 0, time.Millisecond)

	handle, err := poller.Poll(context.Background(), "op-1", 0, nil)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	handle.Cancel()
	waitPollDone(t, handle)
	if handle.Err() != nil {
		t.Fatalf("expected cancel to leave no error, got %v", handle.Err())
	}
}

func TestStatusPoller_SettlingDelayDefersFirstRead(t *testing.T) {
	reader := &scriptedStatusReader{}
	poller := NewStatusPoller(reader, time.Hour, time.Millisecond)

	handle, err := poller.Poll(context.Background(), "op-1", 0, nil)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	handle.Cancel()
	waitPollDone(t, handle)
	if reader.readCount() != 0 {
		t.Fatalf("expected no reads during the settling delay, got %d", reader.readCount())
	}
}

func TestStatusPoller_RequiresOperationID(t *testing.T) {
	poller := NewStatusPoller(&scriptedStatusReader{}, 0, time.Millisecond)
	if _, err := poller.Poll(context.Background(), " ", 0, nil); err == nil {
		t.Fatalf("expected empty id to be rejected")
	}
}

func TestServiceStatusPoller_ObservesCompletion(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newTestClock(), nil)
	if _, err := svc.CreateOperation(ctx, CreateOperationRequest{ID: "op-1", UserID: "u1", Type: OperationTypeChat}); err != nil {
		t.Fatalf("create operation: %v", err)
	}

	handle, err := svc.StatusPoller().Poll(ctx, "op-1", 0, nil)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if _, err := svc.SetOperationStatus(ctx, OperationStatusUpdate{ID: "op-1", Status: OperationStatusCompleted}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	waitPollDone(t, handle)
	if last, _ := handle.Last(); last != OperationStatusCompleted {
		t.Fatalf("expected completed, got %q", last)
	}
}
