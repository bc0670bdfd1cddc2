package gatt

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultQueueDepth is the number of events that may wait for dispatch.
const DefaultQueueDepth = 16

// workItem is an event captured in the radio's event context together
// with the handler set that was current when it was raised.
type workItem struct {
	ev Event
	hs *handlerSet
}

// loop is the cooperative scheduler that runs handlers and tasks.
// Whoever holds turn is the only application code running.
type loop struct {
	queue   chan workItem
	turn    sync.Mutex
	dropped atomic.Uint64
	log     logrus.FieldLogger
}

func newLoop(depth int, log logrus.FieldLogger) *loop {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &loop{queue: make(chan workItem, depth), log: log}
}

// post queues it without blocking. It reports false, and counts the
// event as dropped, when the queue is full.
func (l *loop) post(it workItem) bool {
	select {
	case l.queue <- it:
		return true
	default:
		l.dropped.Add(1)
		return false
	}
}

type loopKey struct{}

// run dispatches queued events in order until ctx is done.
func (l *loop) run(ctx context.Context, dispatch func(context.Context, workItem)) {
	tctx := context.WithValue(context.WithoutCancel(ctx), loopKey{}, l)
	var reported uint64
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-l.queue:
			l.turn.Lock()
			dispatch(tctx, it)
			l.turn.Unlock()
		}
		if n := l.dropped.Load(); n != reported {
			l.log.WithField("dropped", n-reported).Warn("event queue full, events dropped")
			reported = n
		}
	}
}

// spawn starts t on its own goroutine. t runs holding the turn.
func (l *loop) spawn(ctx context.Context, t Task, log logrus.FieldLogger) {
	go func() {
		l.turn.Lock()
		defer l.turn.Unlock()
		defer recoverToLog(log)
		if err := t(ctx); err != nil {
			log.WithError(err).Error("task failed")
		}
	}()
}

// Await runs fn with the turn released, so that handlers and other tasks
// can run while fn blocks. It must be called from the goroutine of the
// Task that received ctx. Outside a task it just calls fn.
func Await(ctx context.Context, fn func() error) error {
	l, _ := ctx.Value(loopKey{}).(*loop)
	if l == nil {
		return fn()
	}
	l.turn.Unlock()
	defer l.turn.Lock()
	return fn()
}

// Sleep suspends a Task for d.
func Sleep(ctx context.Context, d time.Duration) error {
	return Await(ctx, func() error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}
