package endpoint

import (
	"sync"

	"github.com/frostbyte73/core"
	"go.uber.org/atomic"

	"github.com/pithecene-io/ipcpipe/ipc"
	"github.com/pithecene-io/ipcpipe/types"
)

// queue runs inbound items in arrival order on its own goroutine, so the
// reader is never blocked by the pipeline and the pipeline may wait on
// acknowledgements of its own writes.
//
// While flushing, new items other than flush-stop are discarded at once.
type queue struct {
	mu       sync.Mutex
	items    []*ipc.Inbound
	flushing bool
	wake     chan struct{}

	run     func(*ipc.Inbound)
	discard func(*ipc.Inbound)
	queued  atomic.Int32

	stop core.Fuse
	done core.Fuse
}

func newQueue(run, discard func(*ipc.Inbound)) *queue {
	q := &queue{
		wake:    make(chan struct{}, 1),
		run:     run,
		discard: discard,
	}
	go q.loop()
	return q
}

func (q *queue) loop() {
	defer q.done.Break()
	for {
		q.mu.Lock()
		if q.stop.IsBroken() {
			q.mu.Unlock()
			return
		}
		var in *ipc.Inbound
		if len(q.items) > 0 {
			in = q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.queued.Dec()
		}
		q.mu.Unlock()

		if in != nil {
			q.run(in)
			continue
		}
		select {
		case <-q.wake:
		case <-q.stop.Watch():
			return
		}
	}
}

// push appends in, or discards it if the queue is flushing or closed.
func (q *queue) push(in *ipc.Inbound) {
	q.mu.Lock()
	if q.stop.IsBroken() || (q.flushing && !isFlushStop(in)) {
		q.mu.Unlock()
		q.discard(in)
		return
	}
	q.items = append(q.items, in)
	q.queued.Inc()
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// flush enters the flushing state and discards every queued item. It
// returns the number of items discarded.
func (q *queue) flush() int {
	q.mu.Lock()
	q.flushing = true
	dropped := q.takeLocked()
	q.mu.Unlock()

	for _, in := range dropped {
		q.discard(in)
	}
	return len(dropped)
}

// resume leaves the flushing state.
func (q *queue) resume() {
	q.mu.Lock()
	q.flushing = false
	q.mu.Unlock()
}

// Len returns the number of items waiting to run.
func (q *queue) Len() int {
	return int(q.queued.Load())
}

// close stops the worker after the item it is running, if any, and
// discards what is left. It does not wait for the running item.
func (q *queue) close() {
	q.mu.Lock()
	q.stop.Break()
	dropped := q.takeLocked()
	q.mu.Unlock()

	for _, in := range dropped {
		q.discard(in)
	}
}

func (q *queue) takeLocked() []*ipc.Inbound {
	items := q.items
	q.items = nil
	q.queued.Sub(int32(len(items)))
	return items
}

// wait blocks until the worker has exited.
func (q *queue) wait() {
	<-q.done.Watch()
}

func isFlushStop(in *ipc.Inbound) bool {
	return in.Kind == ipc.InboundEvent && in.Event.Type == types.EventFlushStop
}
