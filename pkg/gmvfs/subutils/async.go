package subutils

import (
	"context"
	"errors"
	"sync"

	"github.com/tsarna/gmvfs/pkg/gmvfs/vfs"
	"go.uber.org/zap"
)

var (
	ErrQueueFull      = errors.New("observer queue is full")
	ErrObserverClosed = errors.New("observer is closed")
)

type change struct {
	ctx    context.Context
	topic  string
	node   *vfs.Node
	fields map[string]string
}

// AsyncObserver queues change notifications and delivers them to the
// wrapped observer from a background goroutine, so a slow observer never
// holds up Tree.Refresh.
//
//	obs := subutils.NewAsyncObserver(printer, 64, logger).Start()
//	defer obs.Close()
//	unsubscribe, err := tree.Subscribe("vfs/changed/#", obs)
//
// Close must be called to stop the goroutine; it delivers whatever is
// still queued first.
type AsyncObserver struct {
	wrapped   vfs.Observer
	logger    *zap.Logger
	queue     chan change
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewAsyncObserver creates an AsyncObserver with room for queueSize
// pending notifications. Zero or less selects 100.
func NewAsyncObserver(wrapped vfs.Observer, queueSize int, logger *zap.Logger) *AsyncObserver {
	if queueSize <= 0 {
		queueSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AsyncObserver{
		wrapped: wrapped,
		logger:  logger,
		queue:   make(chan change, queueSize),
		done:    make(chan struct{}),
	}
}

// Start launches the delivery goroutine.
func (a *AsyncObserver) Start() *AsyncObserver {
	a.wg.Add(1)
	go a.processQueue()
	return a
}

func (a *AsyncObserver) deliver(c change) {
	if err := a.wrapped.OnChanged(c.ctx, c.topic, c.node, c.fields); err != nil {
		a.logger.Warn("Queued observer failed", zap.String("topic", c.topic), zap.Error(err))
	}
}

func (a *AsyncObserver) processQueue() {
	defer a.wg.Done()

	for {
		select {
		case c := <-a.queue:
			a.deliver(c)
		case <-a.done:
			a.drainQueue()
			return
		}
	}
}

func (a *AsyncObserver) drainQueue() {
	for {
		select {
		case c := <-a.queue:
			a.deliver(c)
		default:
			return
		}
	}
}

// OnChanged queues the notification and returns immediately.
func (a *AsyncObserver) OnChanged(ctx context.Context, topic string, node *vfs.Node, fields map[string]string) error {
	if a.IsClosed() {
		return ErrObserverClosed
	}

	select {
	case a.queue <- change{ctx: ctx, topic: topic, node: node, fields: fields}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the delivery goroutine after the queue has drained.
func (a *AsyncObserver) Close() error {
	a.closeOnce.Do(func() {
		close(a.done)
		a.wg.Wait()
	})
	return nil
}

// QueueSize returns the number of pending notifications.
func (a *AsyncObserver) QueueSize() int {
	return len(a.queue)
}

// QueueCapacity returns the maximum number of pending notifications.
func (a *AsyncObserver) QueueCapacity() int {
	return cap(a.queue)
}

// IsClosed reports whether Close has been called.
func (a *AsyncObserver) IsClosed() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}
