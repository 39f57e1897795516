package ringbuf

import (
	"testing"
)

func TestRing_BasicPush(t *testing.T) {
	r := New(4)

	if r.Push(1) || r.Push(2) {
		t.Fatal("push into non-full ring should not evict")
	}
	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}
	if r.At(0) != 1 || r.At(1) != 2 {
		t.Fatalf("expected [1 2], got %v", r.Values())
	}
}

func TestRing_EvictsOldest(t *testing.T) {
	r := New(3)
	for _, v := range []float64{1, 2, 3} {
		r.Push(v)
	}

	if !r.Push(4) {
		t.Fatal("push into full ring should report eviction")
	}
	if r.Len() != 3 {
		t.Fatalf("expected len to stay at 3, got %d", r.Len())
	}
	got := r.Values()
	want := []float64{2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if r.Evicted() != 1 {
		t.Fatalf("expected evicted=1, got %d", r.Evicted())
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New(4)

	// Push several laps so head wraps multiple times.
	for i := 0; i < 23; i++ {
		r.Push(float64(i))
	}
	for i := 0; i < 4; i++ {
		if want := float64(19 + i); r.At(i) != want {
			t.Fatalf("At(%d): expected %v, got %v", i, want, r.At(i))
		}
	}
	if r.Evicted() != 19 {
		t.Fatalf("expected evicted=19, got %d", r.Evicted())
	}
}

func TestRing_Tail(t *testing.T) {
	r := New(5)
	for i := 1; i <= 7; i++ {
		r.Push(float64(i))
	}

	cases := []struct {
		k    int
		want []float64
	}{
		{0, nil},
		{2, []float64{6, 7}},
		{5, []float64{3, 4, 5, 6, 7}},
		{9, []float64{3, 4, 5, 6, 7}},
	}
	for _, tc := range cases {
		got := r.Tail(nil, tc.k)
		if len(got) != len(tc.want) {
			t.Fatalf("Tail(%d): expected %v, got %v", tc.k, tc.want, got)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("Tail(%d): expected %v, got %v", tc.k, tc.want, got)
			}
		}
	}
}

func TestRing_ValuesIsCopy(t *testing.T) {
	r := New(2)
	r.Push(1)
	v := r.Values()
	v[0] = 99
	if r.At(0) != 1 {
		t.Fatal("mutating Values() result must not change the ring")
	}
}

func TestRing_MinCapacity(t *testing.T) {
	r := New(0)
	if r.Cap() != 1 {
		t.Fatalf("expected cap=1, got %d", r.Cap())
	}
	r.Push(1)
	r.Push(2)
	if r.Len() != 1 || r.At(0) != 2 {
		t.Fatalf("expected [2], got %v", r.Values())
	}
}
