package nonce

import (
	"testing"
	"time"
)

func TestPutTake(t *testing.T) {
	s := NewStore(0)
	if err := s.Put("st-1", "n-1", time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put("st-1", "n-2", time.Minute); err == nil {
		t.Fatal("expected error overwriting a live state")
	}
	got, ok := s.Take("st-1")
	if !ok || got != "n-1" {
		t.Fatalf("take = %q, %v", got, ok)
	}
	if _, ok := s.Take("st-1"); ok {
		t.Fatal("state taken twice")
	}
	if _, ok := s.Take("unknown"); ok {
		t.Fatal("unknown state accepted")
	}
}

func TestExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := NewStore(3)
	s.now = func() time.Time { return now }

	if err := s.Put("a", "n", time.Minute); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	if _, ok := s.Take("a"); ok {
		t.Fatal("expired state accepted")
	}

	_ = s.Put("b", "n", time.Second)
	now = now.Add(time.Minute)
	_ = s.Put("c", "n", time.Minute) // third write triggers a purge
	if n := s.Len(); n != 1 {
		t.Fatalf("len after purge = %d, want 1", n)
	}
}

func TestRequiresValues(t *testing.T) {
	s := NewStore(0)
	if err := s.Put(" ", "n", time.Minute); err == nil {
		t.Fatal("empty state accepted")
	}
	if err := s.Put("s", "", time.Minute); err == nil {
		t.Fatal("empty nonce accepted")
	}
}
