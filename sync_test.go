package ckernel

import "testing"

func TestReentrantMutexAllowsRecursiveAcquireBySameOwner(t *testing.T) {
	m := &reentrantMutex{}
	tok := newGoroutineToken()
	m.acquire(tok)
	m.acquire(tok)
	m.release(tok)
	m.release(tok)
	if m.held {
		t.Fatal("mutex should be fully released after matching acquire/release pairs")
	}
}

func TestReentrantMutexReleaseByNonOwnerPanics(t *testing.T) {
	m := &reentrantMutex{}
	tok := newGoroutineToken()
	m.acquire(tok)
	defer func() {
		if recover() == nil {
			t.Fatal("release by a different token should panic")
		}
	}()
	m.release(newGoroutineToken())
}

func TestSemaphoreSetThenWaitReturnsImmediately(t *testing.T) {
	s := newSemaphore()
	s.Set()
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	<-done
}

func TestSemaphoreClearIsOneWay(t *testing.T) {
	s := newSemaphore()
	s.Clear()
	s.Set()
	if s.state != semClear {
		t.Fatalf("Set after Clear should be a no-op, state = %v", s.state)
	}
}

func TestSemaphoreRetainReleaseRefCounting(t *testing.T) {
	s := newSemaphore()
	s.Retain()
	s.Retain()
	s.Release()
	if s.refs != 1 {
		t.Fatalf("refs = %d, want 1 after one Release of two Retains", s.refs)
	}
	s.Release()
	if s.state != semClear {
		t.Fatal("semaphore should clear once refs reaches 0")
	}
}

func TestObjectWaitReadyWhenNotBusy(t *testing.T) {
	res := objectWait(1, func() (bool, uint32, bool) { return false, 1, true })
	if res != waitReady {
		t.Fatalf("objectWait = %v, want waitReady", res)
	}
}

func TestObjectWaitSignalledWhenDestroyedMidWait(t *testing.T) {
	res := objectWait(1, func() (bool, uint32, bool) { return true, 2, true })
	if res != waitSignalled {
		t.Fatalf("objectWait = %v, want waitSignalled when the unique ID changes", res)
	}
}

func TestObjectWaitSignalledWhenGone(t *testing.T) {
	res := objectWait(1, func() (bool, uint32, bool) { return true, 1, false })
	if res != waitSignalled {
		t.Fatalf("objectWait = %v, want waitSignalled when the object no longer exists", res)
	}
}

func TestObjectWaitTimesOut(t *testing.T) {
	res := objectWait(1, func() (bool, uint32, bool) { return true, 1, true })
	if res != waitTimedOut {
		t.Fatalf("objectWait = %v, want waitTimedOut when the object never clears busy", res)
	}
}
