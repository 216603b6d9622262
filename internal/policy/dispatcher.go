package policy

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/linedesk/internal/events"
	"github.com/mattjoyce/linedesk/internal/line"
)

// DefaultReplyTimeout bounds one detached reply send.
const DefaultReplyTimeout = 10 * time.Second

// ReplyTask is one canned reply waiting to be sent.
type ReplyTask struct {
	MessageID  string
	Rule       string
	ReplyToken string
	Text       string
}

// ReplyFailure is the notification published when a reply send fails.
type ReplyFailure struct {
	MessageID  string `json:"message_id"`
	Rule       string `json:"rule"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error"`
}

// Dispatcher runs reply sends detached from the request that triggered them.
// Failures are logged and published, never retried.
type Dispatcher struct {
	replier Replier
	pub     events.Publisher
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. pub may be nil.
func NewDispatcher(replier Replier, pub events.Publisher, logger *slog.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultReplyTimeout
	}
	return &Dispatcher{
		replier: replier,
		pub:     pub,
		logger:  logger,
		timeout: timeout,
	}
}

// Reply starts sending task in the background and returns immediately.
// The send keeps ctx values but not its cancellation.
// After Shutdown the task is dropped and logged instead.
func (d *Dispatcher) Reply(ctx context.Context, task ReplyTask) {
	sendCtx := context.WithoutCancel(ctx)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("auto reply dropped during shutdown", "message_id", task.MessageID, "rule", task.Rule)
		return
	}
	// Add under mu so it cannot race a Shutdown that is about to Wait.
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("reply send panicked", "message_id", task.MessageID, "rule", task.Rule, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(sendCtx, d.timeout)
		defer cancel()

		start := time.Now()
		err := d.replier.Reply(ctx, task.ReplyToken, task.Text)
		if err != nil {
			d.fail(task, err)
			return
		}
		d.logger.Info("auto reply sent",
			"message_id", task.MessageID,
			"rule", task.Rule,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()
}

// Timeout is the effective per-send timeout.
func (d *Dispatcher) Timeout() time.Duration { return d.timeout }

// Shutdown stops accepting tasks and waits for the ones already started.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.Wait(ctx)
}

// Wait blocks until every started send has finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) fail(task ReplyTask, err error) {
	failure := ReplyFailure{
		MessageID: task.MessageID,
		Rule:      task.Rule,
		Error:     err.Error(),
	}
	var apiErr *line.APIError
	if errors.As(err, &apiErr) {
		failure.StatusCode = apiErr.StatusCode
	}

	d.logger.Warn("auto reply failed",
		"message_id", task.MessageID,
		"rule", task.Rule,
		"status_code", failure.StatusCode,
		"error", err,
	)
	if d.pub != nil {
		d.pub.Publish(events.ReplyFailed, failure)
	}
}
