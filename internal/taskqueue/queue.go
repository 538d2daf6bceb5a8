// Package taskqueue is a small in-process queue for delayed follow-up work,
// such as retrying a deposit authorization an hour after a decline. Tasks are
// not persisted; anything that must survive a restart is also reachable from
// the periodic database sweeps, which makes a lost task a delay, not a loss.
package taskqueue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"gearshare-backend/internal/logger"
)

// Handler processes one task payload.
type Handler func(ctx context.Context, payload Payload) error

// Payload carries the task arguments as string key-values.
type Payload map[string]string

// Int64 parses the value under key, returning 0 when absent or malformed.
func (p Payload) Int64(key string) int64 {
	v, _ := strconv.ParseInt(p[key], 10, 64)
	return v
}

type task struct {
	id      string
	kind    string
	payload Payload
	runAt   time.Time
}

// Queue dispatches registered handlers for enqueued tasks once their delay
// elapses. One worker goroutine polls the pending set.
type Queue struct {
	mu       sync.Mutex
	handlers map[string]Handler
	pending  []task

	pollInterval time.Duration
	stop         chan struct{}
	done         chan struct{}
	started      bool
}

func New() *Queue {
	return &Queue{
		handlers:     make(map[string]Handler),
		pollInterval: 5 * time.Second,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Register binds a handler to a task kind. Must be called before Start.
func (q *Queue) Register(kind string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = h
}

// Enqueue schedules a task to run after delay. Returns the task id.
func (q *Queue) Enqueue(kind string, payload Payload, delay time.Duration) string {
	t := task{
		id:      uuid.New().String(),
		kind:    kind,
		payload: payload,
		runAt:   time.Now().Add(delay),
	}
	q.mu.Lock()
	q.pending = append(q.pending, t)
	q.mu.Unlock()

	logger.Debug("task enqueued", "task_id", t.id, "kind", kind, "run_at", t.runAt)
	return t.id
}

// Start launches the worker goroutine.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	go q.run(ctx)
}

// Stop signals the worker and waits for it to drain the in-flight task.
func (q *Queue) Stop() {
	q.mu.Lock()
	started := q.started
	q.mu.Unlock()
	if !started {
		return
	}
	close(q.stop)
	<-q.done
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.dispatchDue(ctx, time.Now())
		}
	}
}

func (q *Queue) dispatchDue(ctx context.Context, now time.Time) {
	q.mu.Lock()
	var due, rest []task
	for _, t := range q.pending {
		if !t.runAt.After(now) {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	q.pending = rest
	q.mu.Unlock()

	for _, t := range due {
		q.runTask(ctx, t)
	}
}

func (q *Queue) runTask(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked", "task_id", t.id, "kind", t.kind, "panic", r)
		}
	}()

	q.mu.Lock()
	h, ok := q.handlers[t.kind]
	q.mu.Unlock()
	if !ok {
		logger.Warn("no handler for task kind", "task_id", t.id, "kind", t.kind)
		return
	}

	if err := h(ctx, t.payload); err != nil {
		logger.Error("task failed", "task_id", t.id, "kind", t.kind, "error", err)
		return
	}
	logger.Debug("task completed", "task_id", t.id, "kind", t.kind)
}

// RunDueNow dispatches every task whose deadline has passed, synchronously.
// Used by the run-once CLI mode and by tests.
func (q *Queue) RunDueNow(ctx context.Context) {
	q.dispatchDue(ctx, time.Now())
}

// PendingCount reports the number of tasks still waiting.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
