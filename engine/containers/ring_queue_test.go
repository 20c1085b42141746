package containers

import (
	"testing"

	"github.com/cockroachdb/errors"
)

func TestRingQueueFixed(t *testing.T) {
	q := NewRingQueue[int](2)
	if err := q.Enqueue(1); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(2); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(3); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Enqueue() on full queue = %v, want ErrQueueFull", err)
	}
	if v, _ := q.Peek(); v != 1 {
		t.Errorf("Peek() = %d, want 1", v)
	}
	v, err := q.Dequeue()
	if err != nil || v != 1 {
		t.Errorf("Dequeue() = %d, %v", v, err)
	}
	if err := q.Enqueue(3); err != nil {
		t.Fatalf("Enqueue() after Dequeue() = %v", err)
	}
	for _, want := range []int{2, 3} {
		if v, _ := q.Dequeue(); v != want {
			t.Errorf("Dequeue() = %d, want %d", v, want)
		}
	}
	if _, err := q.Dequeue(); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("Dequeue() on empty queue = %v", err)
	}
}

func TestRingQueueGrowsKeepingOrder(t *testing.T) {
	q := NewRingQueue[string](0)
	in := []string{"a", "b", "c", "d", "e", "f", "g"}
	// wrap the indices before growing
	_ = q.Enqueue("x")
	_, _ = q.Dequeue()
	for _, s := range in {
		if err := q.Enqueue(s); err != nil {
			t.Fatalf("Enqueue(%q) = %v", s, err)
		}
	}
	if q.Len() != len(in) {
		t.Fatalf("Len() = %d, want %d", q.Len(), len(in))
	}
	for _, want := range in {
		if got, _ := q.Dequeue(); got != want {
			t.Errorf("Dequeue() = %q, want %q", got, want)
		}
	}
}
