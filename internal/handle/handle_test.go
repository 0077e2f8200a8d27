package handle

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestHandler_TriggerInvokesAllCallbacks(t *testing.T) {
	h := NewHandler[int]()
	var sum int32
	h.On(func(v int) bool { atomic.AddInt32(&sum, int32(v)); return true })
	h.On(func(v int) bool { atomic.AddInt32(&sum, int32(v*10)); return true })

	h.Trigger(3)

	if got := atomic.LoadInt32(&sum); got != 33 {
		t.Fatalf("expected 33, got %d", got)
	}
	if h.Count() != 2 {
		t.Fatalf("expected 2 callbacks still bound, got %d", h.Count())
	}
}

func TestHandler_CancelRemovesCallback(t *testing.T) {
	h := NewHandler[int]()
	called := false
	hd := h.On(func(v int) bool { called = true; return true })
	hd.Cancel()
	hd.Cancel() // idempotent

	h.Trigger(1)
	if called {
		t.Fatal("expected cancelled callback not to be invoked")
	}
	if h.Count() != 0 {
		t.Fatalf("expected 0 callbacks, got %d", h.Count())
	}
}

func TestHandler_FalseReturnUnsubscribes(t *testing.T) {
	h := NewHandler[int]()
	calls := 0
	h.On(func(v int) bool { calls++; return false })

	h.Trigger(1)
	h.Trigger(2)

	if calls != 1 {
		t.Fatalf("expected exactly one invocation before unsubscribe, got %d", calls)
	}
}

func TestHandler_PanicKeepsCallbackBound(t *testing.T) {
	h := NewHandler[int]()
	calls := 0
	h.On(func(v int) bool {
		calls++
		panic("boom")
	})

	h.Trigger(1)
	h.Trigger(2)

	if calls != 2 {
		t.Fatalf("expected a faulting callback to remain bound, got %d calls", calls)
	}
}

func TestHandler_TriggerParallelDrainsViaWait(t *testing.T) {
	h := NewHandler[int]()
	var count int32
	for i := 0; i < 5; i++ {
		h.On(func(v int) bool { atomic.AddInt32(&count, 1); return true })
	}

	h.TriggerParallel(1)
	h.Wait()

	if got := atomic.LoadInt32(&count); got != 5 {
		t.Fatalf("expected 5 invocations, got %d", got)
	}
}

func TestHandler_TriggerAsyncRunsOffCaller(t *testing.T) {
	h := NewHandler[int]()
	done := make(chan struct{})
	h.On(func(v int) bool { close(done); return true })

	h.TriggerAsync(1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for async trigger")
	}
}

func TestSingletonHandler_RejectsSecondBinding(t *testing.T) {
	var h SingletonHandler[int]
	if _, ok := h.On(func(v int) bool { return true }); !ok {
		t.Fatal("expected first binding to succeed")
	}
	if _, ok := h.On(func(v int) bool { return true }); ok {
		t.Fatal("expected second binding to be rejected while the first is live")
	}
}

func TestSingletonHandler_CancelAllowsRebind(t *testing.T) {
	var h SingletonHandler[int]
	hd, _ := h.On(func(v int) bool { return true })
	hd.Cancel()

	if _, ok := h.On(func(v int) bool { return true }); !ok {
		t.Fatal("expected rebind after cancel to succeed")
	}
}
