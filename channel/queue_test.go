package channel

import "testing"

func env(t *testing.T, seq int) Envelope {
	t.Helper()
	return chunkEnv(t, seq)
}

func TestQueueDrainFIFO(t *testing.T) {
	q := &PendingQueue{}
	for i := 0; i < 5; i++ {
		q.Enqueue(env(t, i))
	}

	var got []int
	n := q.Drain(func(e Envelope) bool {
		got = append(got, seqOf(t, e))
		return true
	})

	if n != 5 || q.Len() != 0 {
		t.Fatalf("drained %d, remaining %d", n, q.Len())
	}
	for i, seq := range got {
		if seq != i {
			t.Fatalf("order = %v", got)
		}
	}
}

func TestQueueDrainStopsAtFirstFailure(t *testing.T) {
	q := &PendingQueue{}
	for i := 0; i < 4; i++ {
		q.Enqueue(env(t, i))
	}

	attempts := 0
	n := q.Drain(func(e Envelope) bool {
		attempts++
		return seqOf(t, e) != 1 // entry 1 fails
	})

	if n != 1 {
		t.Fatalf("sent %d, want 1", n)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2 (pass stops at first failure)", attempts)
	}
	if q.Len() != 3 {
		t.Fatalf("remaining = %d, want 3", q.Len())
	}

	// Failed entry sits at the tail now.
	var got []int
	q.Drain(func(e Envelope) bool {
		got = append(got, seqOf(t, e))
		return true
	})
	want := []int{2, 3, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("second pass order = %v, want %v", got, want)
		}
	}
}

func TestQueueEnqueueDuringDrainGoesToTail(t *testing.T) {
	q := &PendingQueue{}
	q.Enqueue(env(t, 0))

	var got []int
	q.Drain(func(e Envelope) bool {
		seq := seqOf(t, e)
		got = append(got, seq)
		if seq == 0 {
			q.Enqueue(env(t, 1))
		}
		return true
	})

	if len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("got %v, want [0 1]", got)
	}
}
