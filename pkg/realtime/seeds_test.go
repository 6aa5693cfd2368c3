package realtime

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sketchplanations/sketchweb/pkg/session"
)

func TestSeedStoreTakeOnce(t *testing.T) {
	s := NewSeedStore(time.Minute, 0)
	token := s.Put(session.Seed{Query: "bridge"})

	seed, ok := s.Take(token)
	if !ok || seed.Query != "bridge" {
		t.Fatalf("Take() = %+v, %v", seed, ok)
	}
	if _, ok := s.Take(token); ok {
		t.Fatal("seed taken twice")
	}
	if _, ok := s.Take(""); ok {
		t.Fatal("empty token matched")
	}
}

func TestSeedStoreExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewSeedStore(time.Minute, 0)
	s.now = func() time.Time { return now }

	stale := s.Put(session.Seed{Query: "old"})
	now = now.Add(2 * time.Minute)
	if _, ok := s.Take(stale); ok {
		t.Fatal("expired seed returned")
	}

	s.Put(session.Seed{Query: "a"})
	now = now.Add(2 * time.Minute)
	s.Put(session.Seed{Query: "b"})
	if s.Len() != 1 {
		t.Fatalf("expired seeds not swept, %d left", s.Len())
	}
}

func TestSeedStoreLimitEvictsOldest(t *testing.T) {
	s := NewSeedStore(time.Hour, 3)

	var tokens []string
	for i := 0; i < 5; i++ {
		tokens = append(tokens, s.Put(session.Seed{Query: fmt.Sprintf("q%d", i)}))
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 seeds, got %d", s.Len())
	}
	for _, token := range tokens[:2] {
		if _, ok := s.Take(token); ok {
			t.Errorf("evicted seed %s still taken", token)
		}
	}
	for i, token := range tokens[2:] {
		seed, ok := s.Take(token)
		if !ok {
			t.Errorf("seed %d lost", i+2)
			continue
		}
		if want := fmt.Sprintf("q%d", i+2); seed.Query != want {
			t.Errorf("seed %d query = %q, want %q", i+2, seed.Query, want)
		}
	}
}

func TestSeedStoreManyUntakenPagesStayBounded(t *testing.T) {
	s := NewSeedStore(time.Hour, 100)
	for i := 0; i < 10000; i++ {
		s.Put(session.Seed{Query: "crawler"})
	}
	if s.Len() != 100 {
		t.Fatalf("expected 100 seeds, got %d", s.Len())
	}
	if len(s.order) > 200 {
		t.Fatalf("queue grew to %d", len(s.order))
	}
}

func TestSeedStoreQueueStaysBoundedWhenTakenOutOfOrder(t *testing.T) {
	s := NewSeedStore(time.Hour, 10)
	s.Put(session.Seed{Query: "never taken"})
	for i := 0; i < 1000; i++ {
		token := s.Put(session.Seed{Query: "taken"})
		if _, ok := s.Take(token); !ok {
			t.Fatalf("seed %d not taken", i)
		}
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 seed, got %d", s.Len())
	}
	if len(s.order) > 21 {
		t.Fatalf("queue grew to %d", len(s.order))
	}
}

func TestSeedStoreSweep(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewSeedStore(time.Minute, 0)
	s.now = func() time.Time { return now }

	s.Put(session.Seed{Query: "a"})
	s.Put(session.Seed{Query: "b"})
	now = now.Add(30 * time.Second)
	fresh := s.Put(session.Seed{Query: "c"})
	now = now.Add(45 * time.Second)

	s.Sweep()
	if s.Len() != 1 {
		t.Fatalf("expected 1 seed after sweep, got %d", s.Len())
	}
	if seed, ok := s.Take(fresh); !ok || seed.Query != "c" {
		t.Fatalf("Take(fresh) = %+v, %v", seed, ok)
	}
}

func TestSeedStoreRunSweepsWithoutPut(t *testing.T) {
	s := NewSeedStore(time.Minute, 0)
	s.Put(session.Seed{Query: "a"})
	s.Put(session.Seed{Query: "b"})
	later := time.Now().Add(time.Hour)
	s.now = func() time.Time { return later }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expired seeds not swept, %d left", s.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
