package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestEnter_FreeGateGrantsImmediately(t *testing.T) {
	g := New()
	tk := g.Enter()

	select {
	case <-tk.Ready():
	default:
		t.Fatal("first ticket should be granted immediately")
	}
	if !g.Held() {
		t.Error("gate should be held")
	}
	if g.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", g.Pending())
	}

	tk.Release()
	if g.Held() {
		t.Error("gate should be free after release")
	}
	if g.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", g.Pending())
	}
}

func TestRelease_Idempotent(t *testing.T) {
	g := New()
	a := g.Enter()
	b := g.Enter()

	a.Release()
	a.Release() // must not hand the gate past b

	select {
	case <-b.Ready():
	default:
		t.Fatal("b should hold the gate")
	}
	c := g.Enter()
	select {
	case <-c.Ready():
		t.Fatal("c must wait for b")
	default:
	}
	b.Release()
	if err := c.Wait(context.Background()); err != nil {
		t.Fatalf("c.Wait() error: %v", err)
	}
	c.Release()
}

func TestFIFOOrder(t *testing.T) {
	g := New()
	const n = 50

	tickets := make([]*Ticket, n)
	for i := range tickets {
		tickets[i] = g.Enter()
	}

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	// Start waiters in reverse so goroutine start order cannot explain the result.
	for i := n - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := tickets[i].Wait(context.Background()); err != nil {
				t.Errorf("Wait(%d) error: %v", i, err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			tickets[i].Release()
		}(i)
	}
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("order[%d] = %d, want %d (order=%v)", i, got, i, order)
		}
	}
}

func TestMutualExclusion(t *testing.T) {
	g := New()
	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tk := g.Enter()
			if err := tk.Wait(context.Background()); err != nil {
				t.Error(err)
				return
			}
			defer tk.Release()
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(100 * time.Microsecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()
	if maxSeen.Load() != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen.Load())
	}
}

func TestWait_CancelledWaiterIsSkipped(t *testing.T) {
	g := New()
	holder := g.Enter()
	cancelled := g.Enter()
	next := g.Enter()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := cancelled.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() = %v, want context.Canceled", err)
	}
	if g.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", g.Pending())
	}

	holder.Release()
	select {
	case <-next.Ready():
	case <-time.After(time.Second):
		t.Fatal("next ticket should be granted after the cancelled one is skipped")
	}
	next.Release()
	if g.Held() {
		t.Error("gate should be free")
	}
}

func TestWait_TimeoutWhileHeld(t *testing.T) {
	g := New()
	holder := g.Enter()
	defer holder.Release()

	tk := g.Enter()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tk.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() = %v, want DeadlineExceeded", err)
	}
	tk.Release() // abandoned ticket: no-op
	if !g.Held() {
		t.Error("holder should still hold the gate")
	}
}
