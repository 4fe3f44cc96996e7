// Copyright 2025 momentics@gmail.com
// License: Apache 2.0

// queue_test.go — lane routing, overflow policies and close-channel
// shutdown semantics.

package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-chat/api"
)

func frameTask(sid uint64) api.Task {
	return api.Task{Kind: api.TaskFrame, SessionID: sid}
}

// TestSessionStickyRouting verifies that all tasks of one session land
// in a single lane, in submission order.
func TestSessionStickyRouting(t *testing.T) {
	q := New(4, 64, OverflowBlock, nil)
	defer q.Close()

	const perSession = 20
	for i := 0; i < perSession; i++ {
		for sid := uint64(1); sid <= 8; sid++ {
			if err := q.Enqueue(frameTask(sid)); err != nil {
				t.Fatalf("Enqueue failed: %v", err)
			}
		}
	}

	// Drain every lane and check each session stayed confined to a
	// single lane. Order within a lane is channel FIFO.
	laneOf := make(map[uint64]int)
	counts := make(map[uint64]int)
	for i := 0; i < q.Lanes(); i++ {
		for drained := false; !drained; {
			select {
			case task := <-q.Lane(i):
				if prev, seen := laneOf[task.SessionID]; seen && prev != i {
					t.Fatalf("session %d spread across lanes %d and %d", task.SessionID, prev, i)
				}
				laneOf[task.SessionID] = i
				counts[task.SessionID]++
			default:
				drained = true
			}
		}
	}
	for sid := uint64(1); sid <= 8; sid++ {
		if counts[sid] != perSession {
			t.Errorf("session %d: %d tasks, want %d", sid, counts[sid], perSession)
		}
	}
}

func TestTickRotatesLanes(t *testing.T) {
	q := New(4, 16, OverflowBlock, nil)
	defer q.Close()

	for i := 0; i < 8; i++ {
		if err := q.Enqueue(api.Task{Kind: api.TaskTick}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	for i := 0; i < q.Lanes(); i++ {
		if len(q.Lane(i)) != 2 {
			t.Errorf("lane %d holds %d ticks, want 2", i, len(q.Lane(i)))
		}
	}
}

func TestDropPolicy(t *testing.T) {
	var droppedTasks []api.Task
	q := New(1, 2, OverflowDrop, func(t api.Task) {
		droppedTasks = append(droppedTasks, t)
	})
	defer q.Close()

	for i := 0; i < 2; i++ {
		if err := q.Enqueue(frameTask(7)); err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
	}
	if err := q.Enqueue(frameTask(7)); err != api.ErrQueueFull {
		t.Fatalf("overflow Enqueue: err = %v, want ErrQueueFull", err)
	}
	if q.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", q.Dropped())
	}
	if len(droppedTasks) != 1 || droppedTasks[0].SessionID != 7 {
		t.Errorf("drop hook saw %v", droppedTasks)
	}
	if q.Enqueued() != 2 {
		t.Errorf("Enqueued = %d, want 2", q.Enqueued())
	}
}

// TestBlockPolicyAppliesBackpressure fills a lane, then verifies the
// producer parks until a consumer makes room.
func TestBlockPolicyAppliesBackpressure(t *testing.T) {
	q := New(1, 1, OverflowBlock, nil)
	defer q.Close()

	if err := q.Enqueue(frameTask(1)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	released := make(chan struct{})
	go func() {
		q.Enqueue(frameTask(1)) // parks: lane is full
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("producer did not block on a full lane")
	case <-time.After(20 * time.Millisecond):
	}

	<-q.Lane(0) // make room
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("producer still blocked after lane drained")
	}
}

// TestCloseDrainsWithoutSentinel enqueues, closes, and expects a
// ranging consumer to see every task and then exit on lane closure.
func TestCloseDrainsWithoutSentinel(t *testing.T) {
	q := New(2, 64, OverflowBlock, nil)

	const total = 40
	for i := 0; i < total; i++ {
		if err := q.Enqueue(frameTask(uint64(i))); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	q.Close()

	var seen int64
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < q.Lanes(); i++ {
		wg.Add(1)
		go func(lane <-chan api.Task) {
			defer wg.Done()
			for range lane {
				mu.Lock()
				seen++
				mu.Unlock()
			}
		}(q.Lane(i))
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumers did not exit after Close")
	}
	if seen != total {
		t.Fatalf("drained %d tasks, want %d", seen, total)
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	q := New(1, 4, OverflowBlock, nil)
	q.Close()
	q.Close() // idempotent
	if err := q.Enqueue(frameTask(1)); err != api.ErrQueueClosed {
		t.Fatalf("err = %v, want ErrQueueClosed", err)
	}
}

func BenchmarkEnqueueDequeue(b *testing.B) {
	q := New(4, 4096, OverflowBlock, nil)
	var wg sync.WaitGroup
	for i := 0; i < q.Lanes(); i++ {
		wg.Add(1)
		go func(lane <-chan api.Task) {
			defer wg.Done()
			for range lane {
			}
		}(q.Lane(i))
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Enqueue(frameTask(uint64(i)))
	}
	q.Close()
	wg.Wait()
}
