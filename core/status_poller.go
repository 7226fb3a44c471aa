package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// StatusPoller observes an operation until it reaches a terminal status.
// Absent records are treated as not yet visible and polling continues.
type StatusPoller struct {
	Reader        StatusReader
	SettlingDelay time.Duration
	Interval      time.Duration
	OnError       func(operationID string, err error)
}

func NewStatusPoller(reader StatusReader, settlingDelay time.Duration, interval time.Duration) *StatusPoller {
	return &StatusPoller{Reader: reader, SettlingDelay: settlingDelay, Interval: interval}
}

// StatusPoller returns a poller reading from this service with its
// configured delays.
func (s *Service) StatusPoller() *StatusPoller {
	return NewStatusPoller(s, s.config.Operations.SettlingDelay, s.config.Operations.PollInterval)
}

type PollHandle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	last OperationStatus
	err  error
}

// Cancel stops polling. The operation record is not touched.
func (h *PollHandle) Cancel() {
	if h != nil && h.cancel != nil {
		h.cancel()
	}
}

func (h *PollHandle) Done() <-chan struct{} {
	return h.done
}

// Err returns the read error that stopped polling, if any.
func (h *PollHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Last returns the most recently observed status.
func (h *PollHandle) Last() (OperationStatus, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last, h.last != ""
}

// Poll starts observing operationID after the settling delay, reading every
// interval and calling onChange whenever the observed status differs from the
// previous one. Polling stops on a terminal status, a read error, Cancel or
// ctx cancellation.
func (p *StatusPoller) Poll(ctx context.Context, operationID string, interval time.Duration, onChange func(OperationStatus)) (*PollHandle, error) {
	if p == nil || p.Reader == nil {
		return nil, fmt.Errorf("core: status reader is not configured")
	}
	operationID = strings.TrimSpace(operationID)
	if operationID == "" {
		return nil, fmt.Errorf("core: operation id is required")
	}
	if interval <= 0 {
		interval = p.Interval
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	settling := p.SettlingDelay
	if settling < 0 {
		settling = 0
	}

	pollCtx, cancel := context.WithCancel(ctx)
	handle := &PollHandle{cancel: cancel, done: make(chan struct{})}
	go p.run(pollCtx, handle, operationID, settling, interval, onChange)
	return handle, nil
}

func (p *StatusPoller) run(
	ctx context.Context,
	handle *PollHandle,
	operationID string,
	settling time.Duration,
	interval time.Duration,
	onChange func(OperationStatus),
) {
	defer close(handle.done)
	defer handle.cancel()

	settle := time.NewTimer(settling)
	defer settle.Stop()
	select {
	case <-ctx.Done():
		return
	case <-settle.C:
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if stop := p.observe(ctx, handle, operationID, onChange); stop {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *StatusPoller) observe(ctx context.Context, handle *PollHandle, operationID string, onChange func(OperationStatus)) bool {
	status, found, err := p.Reader.GetOperationStatus(ctx, operationID)
	if ctx.Err() != nil {
		return true
	}
	if err != nil {
		handle.mu.Lock()
		handle.err = err
		handle.mu.Unlock()
		if p.OnError != nil {
			p.OnError(operationID, err)
		}
		return true
	}
	if !found {
		return false
	}

	handle.mu.Lock()
	changed := status != handle.last
	handle.last = status
	handle.mu.Unlock()
	if changed && onChange != nil {
		onChange(status)
	}
	return status.Terminal()
}
