package queue

import (
	"sync"
	"testing"
	"time"
)

func TestBoundedBuffer_BasicSendReceive(t *testing.T) {
	buf := NewBoundedBuffer[int](10)

	for i := 0; i < 5; i++ {
		if !buf.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}

	if buf.Len() != 5 {
		t.Errorf("Len() = %d, want 5", buf.Len())
	}

	for i := 0; i < 5; i++ {
		val, ok := buf.TryReceive()
		if !ok {
			t.Fatalf("TryReceive() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("received %d, want %d", val, i)
		}
	}

	if buf.Len() != 0 {
		t.Errorf("Len() = %d, want 0", buf.Len())
	}
}

func TestBoundedBuffer_SendBlocksWhenFull(t *testing.T) {
	buf := NewBoundedBuffer[int](2)
	buf.Send(1)
	buf.Send(2)

	unblocked := make(chan struct{})
	go func() {
		buf.Send(3) // must block until a receive frees a slot
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("Send returned while buffer was full")
	case <-time.After(20 * time.Millisecond):
	}

	if val, ok := buf.Receive(); !ok || val != 1 {
		t.Fatalf("Receive() = %d, %v; want 1, true", val, ok)
	}

	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("Send did not unblock after Receive")
	}

	stats := buf.Stats()
	if stats.BlockedSends != 1 {
		t.Errorf("BlockedSends = %d, want 1", stats.BlockedSends)
	}
}

func TestBoundedBuffer_TrySendFull(t *testing.T) {
	buf := NewBoundedBuffer[int](1)
	if !buf.TrySend(1) {
		t.Fatal("TrySend on empty buffer returned false")
	}
	if buf.TrySend(2) {
		t.Error("TrySend on full buffer returned true")
	}
}

func TestBoundedBuffer_BlockingReceive(t *testing.T) {
	buf := NewBoundedBuffer[int](10)

	received := make(chan int, 1)
	go func() {
		val, ok := buf.Receive()
		if ok {
			received <- val
		}
	}()

	time.Sleep(10 * time.Millisecond)
	buf.Send(42)

	select {
	case val := <-received:
		if val != 42 {
			t.Errorf("received %d, want 42", val)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive did not return after Send")
	}
}

func TestBoundedBuffer_CloseUnblocksWaiters(t *testing.T) {
	buf := NewBoundedBuffer[int](1)
	buf.Send(1)

	var wg sync.WaitGroup
	wg.Add(2)

	var sendOK, recvDrained bool
	go func() {
		defer wg.Done()
		sendOK = buf.Send(2) // blocked on full buffer
	}()
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		buf.Close()
		// Remaining item still drains after close.
		_, recvDrained = buf.TryReceive()
	}()

	wg.Wait()

	if sendOK {
		t.Error("Send after Close returned true")
	}
	if !recvDrained {
		t.Error("TryReceive after Close did not drain remaining item")
	}

	if _, ok := buf.Receive(); ok {
		t.Error("Receive on closed empty buffer returned true")
	}
	if buf.Send(9) {
		t.Error("Send on closed buffer returned true")
	}
}

func TestBoundedBuffer_FIFOUnderConcurrency(t *testing.T) {
	buf := NewBoundedBuffer[int](8)
	const n = 1000

	go func() {
		for i := 0; i < n; i++ {
			buf.Send(i)
		}
		buf.Close()
	}()

	for i := 0; i < n; i++ {
		val, ok := buf.Receive()
		if !ok {
			t.Fatalf("Receive returned closed after %d items", i)
		}
		if val != i {
			t.Fatalf("received %d, want %d (order violated)", val, i)
		}
	}
	if _, ok := buf.Receive(); ok {
		t.Error("expected closed signal after all items")
	}

	stats := buf.Stats()
	if stats.TotalReceived != n || stats.TotalSent != n {
		t.Errorf("TotalReceived/TotalSent = %d/%d, want %d/%d", stats.TotalReceived, stats.TotalSent, n, n)
	}
}
