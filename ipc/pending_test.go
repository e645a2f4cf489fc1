package ipc

import (
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/ipcpipe/metrics"
	"github.com/pithecene-io/ipcpipe/types"
)

type awaitResult struct {
	ret       uint32
	commError bool
	err       error
}

func newTestTable() (*RequestTable, *metrics.Collector) {
	m := metrics.NewCollector("test", "")
	return NewRequestTable(&sync.Mutex{}, nil, m), m
}

// awaitAsync starts Await on a goroutine once id is registered.
func awaitAsync(t *testing.T, table *RequestTable, id uint32, kind RequestKind, q *types.Query, mode AckMode, timeout time.Duration) <-chan awaitResult {
	t.Helper()
	ch := make(chan awaitResult, 1)
	go func() {
		ret, commError, err := table.Await(id, kind, q, mode, timeout)
		ch <- awaitResult{ret, commError, err}
	}()
	waitFor(t, func() bool { return table.has(id) })
	return ch
}

func (t *RequestTable) has(id uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[id]
	return ok
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(time.Millisecond)
	}
}

func receive(t *testing.T, ch <-chan awaitResult) awaitResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not return within 2s")
		return awaitResult{}
	}
}

func TestRequestKind_Values(t *testing.T) {
	tests := []struct {
		kind     RequestKind
		success  uint32
		failure  uint32
		flushing uint32
	}{
		{RequestBuffer, flowResult(types.FlowOK), flowResult(types.FlowCommError), flowResult(types.FlowFlushing)},
		{RequestEvent, 1, 0, 0},
		{RequestQuery, 1, 0, 0},
		{RequestMessage, 1, 0, 0},
		{RequestStateChange, uint32(types.StateChangeSuccess), uint32(types.StateChangeFailure), uint32(types.StateChangeFailure)},
	}
	for _, tt := range tests {
		if got := tt.kind.SuccessValue(); got != tt.success {
			t.Errorf("%s SuccessValue = %d, want %d", tt.kind, got, tt.success)
		}
		if got := tt.kind.FailureValue(); got != tt.failure {
			t.Errorf("%s FailureValue = %d, want %d", tt.kind, got, tt.failure)
		}
		if got := tt.kind.FlushingValue(); got != tt.flushing {
			t.Errorf("%s FlushingValue = %d, want %d", tt.kind, got, tt.flushing)
		}
	}

	if got := RequestBuffer.ResultName(flowResult(types.FlowCommError)); got != "comm-error" {
		t.Errorf("ResultName = %q, want comm-error", got)
	}
	if got := RequestStateChange.ResultName(uint32(types.StateChangeAsync)); got != "ASYNC" {
		t.Errorf("ResultName = %q, want ASYNC", got)
	}
	if got := RequestEvent.ResultName(1); got != "TRUE" {
		t.Errorf("ResultName = %q, want TRUE", got)
	}
}

func TestRequestTable_Resolve(t *testing.T) {
	table, m := newTestTable()
	ch := awaitAsync(t, table, 1, RequestBuffer, nil, AckBlocking, 0)

	if !table.Resolve(1, flowResult(types.FlowEOS), nil) {
		t.Fatal("Resolve returned false")
	}
	r := receive(t, ch)
	if types.FlowReturn(int32(r.ret)) != types.FlowEOS {
		t.Errorf("ret = %s, want eos", types.FlowReturn(int32(r.ret)))
	}
	if r.commError {
		t.Error("commError = true, want false")
	}
	if table.Len() != 0 {
		t.Errorf("Len = %d, want 0", table.Len())
	}
	if got := m.Snapshot().AcksResolved; got != 1 {
		t.Errorf("AcksResolved = %d, want 1", got)
	}
}

func TestRequestTable_ResolveAtMostOnce(t *testing.T) {
	table, _ := newTestTable()

	table.mu.Lock()
	req, err := table.register(5, RequestEvent, nil)
	table.mu.Unlock()
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if !table.Resolve(5, 1, nil) {
		t.Fatal("first Resolve returned false")
	}
	if table.Resolve(5, 0, nil) {
		t.Error("second Resolve returned true")
	}

	table.mu.Lock()
	ret := table.wait(req, AckBlocking, 0)
	table.mu.Unlock()
	if ret != 1 {
		t.Errorf("ret = %d, want the first reply 1", ret)
	}
	if table.Resolve(5, 1, nil) {
		t.Error("Resolve after removal returned true")
	}
}

func TestRequestTable_ResolveUnknown(t *testing.T) {
	table, m := newTestTable()
	if table.Resolve(99, 1, nil) {
		t.Error("Resolve(unknown) returned true")
	}
	if got := m.Snapshot().UnknownReplies; got != 1 {
		t.Errorf("UnknownReplies = %d, want 1", got)
	}
}

func TestRequestTable_DuplicateID(t *testing.T) {
	table, _ := newTestTable()
	table.mu.Lock()
	defer table.mu.Unlock()
	if _, err := table.register(1, RequestEvent, nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := table.register(1, RequestEvent, nil); err == nil {
		t.Error("duplicate register succeeded")
	}
}

func TestRequestTable_QueryMergeInPlace(t *testing.T) {
	table, _ := newTestTable()
	q := types.NewPositionQuery()
	structure := q.Structure
	ch := awaitAsync(t, table, 3, RequestQuery, q, AckBlocking, 0)

	reply := types.NewPositionQuery()
	reply.SetPosition(123456)
	table.Resolve(3, 1, reply)

	if r := receive(t, ch); r.ret != 1 {
		t.Errorf("ret = %d, want 1", r.ret)
	}
	if q.Position() != 123456 {
		t.Errorf("Position = %d, want 123456", q.Position())
	}
	if q.Structure != structure {
		t.Error("query structure was replaced instead of updated")
	}
}

func TestRequestTable_TimedWaitExpires(t *testing.T) {
	table, m := newTestTable()
	start := time.Now()
	ret, commError, err := table.Await(1, RequestStateChange, nil, AckTimed, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("returned after %v, before the timeout", elapsed)
	}
	if types.StateChangeReturn(ret) != types.StateChangeFailure {
		t.Errorf("ret = %s, want FAILURE", types.StateChangeReturn(ret))
	}
	if !commError {
		t.Error("commError = false, want true")
	}
	if got := m.Snapshot().AckTimeouts; got != 1 {
		t.Errorf("AckTimeouts = %d, want 1", got)
	}
}

func TestRequestTable_TimeoutIndependence(t *testing.T) {
	table, _ := newTestTable()
	short := awaitAsync(t, table, 1, RequestEvent, nil, AckTimed, 20*time.Millisecond)
	long := awaitAsync(t, table, 2, RequestEvent, nil, AckTimed, time.Minute)

	r := receive(t, short)
	if r.ret != 0 || !r.commError {
		t.Errorf("short = %+v, want failure with commError", r)
	}

	select {
	case r := <-long:
		t.Fatalf("long waiter returned early: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
	if !table.has(2) {
		t.Fatal("long request left the table")
	}

	table.Resolve(2, 1, nil)
	if r := receive(t, long); r.ret != 1 || r.commError {
		t.Errorf("long = %+v, want success", r)
	}
}

func TestRequestTable_CancelAllEmpty(t *testing.T) {
	table, _ := newTestTable()
	if n := table.CancelAll(CancelFailure, false); n != 0 {
		t.Errorf("CancelAll = %d, want 0", n)
	}
	if n := table.CancelAll(CancelFlushing, true); n != 0 {
		t.Errorf("CancelAll = %d, want 0", n)
	}
}

func TestRequestTable_CancelAll(t *testing.T) {
	tests := []struct {
		name    string
		policy  CancelPolicy
		cleanup bool
		want    types.FlowReturn
	}{
		{"failure", CancelFailure, false, types.FlowCommError},
		{"failure with cleanup", CancelFailure, true, types.FlowCommError},
		{"flushing", CancelFlushing, false, types.FlowFlushing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, m := newTestTable()
			const n = 4
			var chans []<-chan awaitResult
			for id := uint32(1); id <= n; id++ {
				chans = append(chans, awaitAsync(t, table, id, RequestBuffer, nil, AckBlocking, 0))
			}

			if got := table.CancelAll(tt.policy, tt.cleanup); got != n {
				t.Errorf("CancelAll = %d, want %d", got, n)
			}
			if tt.cleanup && table.Len() != 0 {
				t.Errorf("Len after cleanup = %d, want 0", table.Len())
			}

			for i, ch := range chans {
				r := receive(t, ch)
				if got := types.FlowReturn(int32(r.ret)); got != tt.want {
					t.Errorf("waiter %d ret = %s, want %s", i, got, tt.want)
				}
			}
			if table.Len() != 0 {
				t.Errorf("Len = %d, want 0", table.Len())
			}
			if got := m.Snapshot().Cancelled; got != n {
				t.Errorf("Cancelled = %d, want %d", got, n)
			}
		})
	}
}

func TestRequestTable_CleanupKeepsNewRegistrations(t *testing.T) {
	table, _ := newTestTable()
	old := awaitAsync(t, table, 1, RequestEvent, nil, AckBlocking, 0)
	table.CancelAll(CancelFailure, true)

	// A new request may reuse the table before the old waiter wakes.
	fresh := awaitAsync(t, table, 1, RequestEvent, nil, AckBlocking, 0)
	receive(t, old)
	if !table.has(1) {
		t.Fatal("old waiter removed the new registration")
	}
	table.Resolve(1, 1, nil)
	if r := receive(t, fresh); r.ret != 1 {
		t.Errorf("fresh ret = %d, want 1", r.ret)
	}
}
