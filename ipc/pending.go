package ipc

import (
	"fmt"
	"sync"
	"time"

	"github.com/pithecene-io/ipcpipe/log"
	"github.com/pithecene-io/ipcpipe/metrics"
	"github.com/pithecene-io/ipcpipe/types"
)

// RequestKind selects how the result of an acknowledged request is read.
type RequestKind int

// Request kinds.
const (
	// RequestBuffer results are types.FlowReturn values.
	RequestBuffer RequestKind = iota
	// RequestEvent results are booleans.
	RequestEvent
	// RequestQuery results are booleans; the reply may carry a query.
	RequestQuery
	// RequestStateChange results are types.StateChangeReturn values.
	RequestStateChange
	// RequestMessage results are booleans.
	RequestMessage
)

func (k RequestKind) String() string {
	switch k {
	case RequestBuffer:
		return "buffer"
	case RequestEvent:
		return "event"
	case RequestQuery:
		return "query"
	case RequestStateChange:
		return "state-change"
	case RequestMessage:
		return "message"
	default:
		return "unknown"
	}
}

func boolResult(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// SuccessValue is the result of a request that needs no acknowledgement.
func (k RequestKind) SuccessValue() uint32 {
	switch k {
	case RequestBuffer:
		return flowResult(types.FlowOK)
	case RequestStateChange:
		return uint32(types.StateChangeSuccess)
	default:
		return boolResult(true)
	}
}

// FailureValue is the result reported when the peer could not answer.
func (k RequestKind) FailureValue() uint32 {
	switch k {
	case RequestBuffer:
		return flowResult(types.FlowCommError)
	case RequestStateChange:
		return uint32(types.StateChangeFailure)
	default:
		return boolResult(false)
	}
}

// FlushingValue is the result reported when a request is discarded by a
// flush or disconnect rather than failed.
func (k RequestKind) FlushingValue() uint32 {
	if k == RequestBuffer {
		return flowResult(types.FlowFlushing)
	}
	return k.FailureValue()
}

// ResultName renders a raw result value for logs.
func (k RequestKind) ResultName(ret uint32) string {
	switch k {
	case RequestBuffer:
		return types.FlowReturn(int32(ret)).String()
	case RequestStateChange:
		return types.StateChangeReturn(ret).String()
	default:
		if ret != 0 {
			return "TRUE"
		}
		return "FALSE"
	}
}

func flowResult(f types.FlowReturn) uint32 {
	return uint32(int32(f))
}

// AckMode is how long a sender waits for the acknowledgement of a frame.
type AckMode int

// Ack modes.
const (
	// AckNone does not wait; the request succeeds once written.
	AckNone AckMode = iota
	// AckTimed waits up to the configured ack time.
	AckTimed
	// AckBlocking waits until answered or cancelled.
	AckBlocking
)

func (m AckMode) String() string {
	switch m {
	case AckNone:
		return "none"
	case AckTimed:
		return "timed"
	case AckBlocking:
		return "blocking"
	default:
		return "unknown"
	}
}

// CancelPolicy chooses the result given to cancelled requests.
type CancelPolicy int

const (
	// CancelFailure resolves requests with their kind's failure value.
	CancelFailure CancelPolicy = iota
	// CancelFlushing resolves requests with their kind's flushing value.
	CancelFlushing
)

// request is one in-flight acknowledged send. All fields are guarded by
// the table mutex.
type request struct {
	id        uint32
	kind      RequestKind
	query     *types.Query
	cond      *sync.Cond
	replied   bool
	expired   bool
	commError bool
	ret       uint32
}

// RequestTable correlates replies with the callers waiting for them.
//
// The mutex is shared with the owning Comm so that writing a frame and
// registering its request happen atomically. Every waiter sleeps on its
// own condition variable.
type RequestTable struct {
	mu      *sync.Mutex
	entries map[uint32]*request
	logger  *log.Logger
	metrics *metrics.Collector
}

// NewRequestTable creates a table guarded by mu.
func NewRequestTable(mu *sync.Mutex, logger *log.Logger, m *metrics.Collector) *RequestTable {
	if logger == nil {
		logger = log.Nop()
	}
	return &RequestTable{
		mu:      mu,
		entries: make(map[uint32]*request),
		logger:  logger,
		metrics: m,
	}
}

// register inserts a request. Caller must hold t.mu.
func (t *RequestTable) register(id uint32, kind RequestKind, q *types.Query) (*request, error) {
	if _, ok := t.entries[id]; ok {
		return nil, fmt.Errorf("request %d already pending", id)
	}
	req := &request{
		id:    id,
		kind:  kind,
		query: q,
		cond:  sync.NewCond(t.mu),
		ret:   kind.FailureValue(),
	}
	t.entries[id] = req
	return req, nil
}

// wait blocks until req is answered, cancelled or, for AckTimed, the
// timeout elapses. Caller must hold t.mu; it is released while asleep.
// The request is removed from the table before returning.
func (t *RequestTable) wait(req *request, mode AckMode, timeout time.Duration) uint32 {
	if mode == AckNone {
		t.remove(req)
		return req.kind.SuccessValue()
	}

	if mode == AckTimed {
		timer := time.AfterFunc(timeout, func() {
			t.mu.Lock()
			req.expired = true
			req.cond.Signal()
			t.mu.Unlock()
		})
		defer timer.Stop()
	}

	for !req.replied && !req.expired {
		req.cond.Wait()
	}

	ret := req.kind.FailureValue()
	if req.replied {
		ret = req.ret
	} else {
		req.commError = true
		t.metrics.IncAckTimeout()
		t.logger.Error("timeout waiting for reply", map[string]any{
			"id":      req.id,
			"kind":    req.kind.String(),
			"timeout": timeout.String(),
		})
	}
	t.remove(req)
	return ret
}

// remove drops req unless the table was replaced since it was registered.
func (t *RequestTable) remove(req *request) {
	if t.entries[req.id] == req {
		delete(t.entries, req.id)
	}
}

// Await registers a request under id and waits for it according to mode.
// It returns the result and whether the wait ended without a reply.
func (t *RequestTable) Await(id uint32, kind RequestKind, q *types.Query, mode AckMode, timeout time.Duration) (uint32, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, err := t.register(id, kind, q)
	if err != nil {
		return kind.FailureValue(), true, err
	}
	ret := t.wait(req, mode, timeout)
	return ret, req.commError, nil
}

// Resolve delivers a reply. For query replies the fields of reply replace
// those of the waiting query in place. It reports whether a waiter was
// resolved; replies for unknown or already answered ids are ignored.
func (t *RequestTable) Resolve(id, ret uint32, reply *types.Query) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolveLocked(id, ret, reply)
}

func (t *RequestTable) resolveLocked(id, ret uint32, reply *types.Query) bool {
	req, ok := t.entries[id]
	if !ok {
		t.metrics.IncUnknownReply()
		t.logger.Warn("got reply for unknown request", map[string]any{"id": id})
		return false
	}
	if req.replied {
		return false
	}
	req.replied = true
	req.ret = ret
	if reply != nil {
		if req.query != nil {
			req.query.MergeReply(reply)
		} else {
			t.logger.Warn("got query reply, but no query was in the request", map[string]any{"id": id})
		}
	}
	t.metrics.IncAckResolved()
	if t.logger.Enabled(log.LevelDebug) {
		t.logger.Debug("got reply", map[string]any{
			"id":     id,
			"kind":   req.kind.String(),
			"result": req.kind.ResultName(ret),
		})
	}
	req.cond.Signal()
	return true
}

// CancelAll force-resolves every pending request with the result the
// policy selects and wakes its waiter. With cleanup the table is replaced
// by an empty one; otherwise each waiter removes its own entry. It returns
// the number of requests cancelled.
func (t *RequestTable) CancelAll(policy CancelPolicy, cleanup bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelLocked(policy, cleanup)
}

func (t *RequestTable) cancelLocked(policy CancelPolicy, cleanup bool) int {
	n := 0
	for id, req := range t.entries {
		if req.replied {
			continue
		}
		ret := req.kind.FailureValue()
		if policy == CancelFlushing {
			ret = req.kind.FlushingValue()
		}
		t.logger.Debug("cancelling request", map[string]any{
			"id":     id,
			"kind":   req.kind.String(),
			"result": req.kind.ResultName(ret),
		})
		req.replied = true
		req.ret = ret
		req.cond.Signal()
		n++
	}
	if cleanup {
		t.entries = make(map[uint32]*request)
	}
	t.metrics.AddCancelled(n)
	return n
}

// Len returns the number of requests in the table.
func (t *RequestTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
