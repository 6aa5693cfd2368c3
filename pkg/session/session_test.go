package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sketchplanations/sketchweb/pkg/gallery"
)

type scriptedSearcher struct {
	mu      sync.Mutex
	gates   map[string]chan struct{}
	results map[string][]gallery.Image
	errs    map[string]error
	calls   []string
}

func newScriptedSearcher() *scriptedSearcher {
	return &scriptedSearcher{
		gates:   map[string]chan struct{}{},
		results: map[string][]gallery.Image{},
		errs:    map[string]error{},
	}
}

// hold makes searches for q block until the returned func is called.
func (f *scriptedSearcher) hold(q string) func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[q] = gate
	f.mu.Unlock()
	return func() { close(gate) }
}

func (f *scriptedSearcher) Images(ctx context.Context, q string) ([]gallery.Image, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	gate := f.gates[q]
	images, err := f.results[q], f.errs[q]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return images, err
}

type recorder struct {
	mu     sync.Mutex
	urls   []string
	states []State
}

func (r *recorder) replace(q string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, QueryURL("/search", q))
}

func (r *recorder) publish(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func TestSessionSubmitReplacesURL(t *testing.T) {
	searcher := newScriptedSearcher()
	searcher.results["golden gate"] = bridge
	rec := &recorder{}

	s := New(context.Background(), searcher, nil, rec.replace, rec.publish)
	defer s.Close()

	if !s.Submit("golden gate") {
		t.Fatal("Submit refused a query")
	}
	s.Wait()

	st := s.State()
	if st.Phase() != Results || st.Query != "golden gate" || len(st.Results) != 1 {
		t.Fatalf("unexpected state %+v", st)
	}
	if len(rec.urls) != 1 || rec.urls[0] != "/search?q=golden%20gate" {
		t.Fatalf("unexpected url replacements %v", rec.urls)
	}
	if len(rec.states) != 2 || !rec.states[0].IsSearching || rec.states[1].IsSearching {
		t.Fatalf("expected searching then results, got %+v", rec.states)
	}
}

func TestSessionSeededStateSkipsSearch(t *testing.T) {
	searcher := newScriptedSearcher()
	s := New(context.Background(), searcher, &Seed{Query: "bridge", Images: bridge}, nil, nil)
	defer s.Close()

	st := s.State()
	if st.Phase() != Results || !st.HasSearched || len(st.Results) != 1 {
		t.Fatalf("unexpected seeded state %+v", st)
	}
	if len(searcher.calls) != 0 {
		t.Fatalf("seeded session searched: %v", searcher.calls)
	}
}

func TestSessionNewerQueryWins(t *testing.T) {
	searcher := newScriptedSearcher()
	searcher.results["a"] = []gallery.Image{{UID: "a", Src: "https://x/a.png", Width: 1, Height: 1}}
	searcher.results["ab"] = bridge
	releaseA := searcher.hold("a")
	rec := &recorder{}

	s := New(context.Background(), searcher, nil, rec.replace, rec.publish)
	defer s.Close()

	s.Submit("a")
	s.Submit("ab")
	s.Wait()
	releaseA()

	st := s.State()
	if st.Query != "ab" || len(st.Results) != 1 || st.Results[0].UID != "bridge" {
		t.Fatalf("older search overwrote the newer one: %+v", st)
	}
	if len(rec.urls) != 1 || rec.urls[0] != "/search?q=ab" {
		t.Fatalf("unexpected url replacements %v", rec.urls)
	}
}

func TestSessionDuplicateSubmit(t *testing.T) {
	searcher := newScriptedSearcher()
	release := searcher.hold("bridge")

	s := New(context.Background(), searcher, nil, nil, nil)
	defer s.Close()

	if !s.Submit("bridge") {
		t.Fatal("first submit refused")
	}
	if s.Submit("bridge") {
		t.Fatal("second submit for the same query started a search")
	}
	release()
	s.Wait()

	if len(searcher.calls) != 1 {
		t.Fatalf("expected one search, got %v", searcher.calls)
	}
}

func TestSessionFailureKeepsURL(t *testing.T) {
	searcher := newScriptedSearcher()
	searcher.errs["bridge"] = errors.New("repository unreachable")
	rec := &recorder{}

	s := New(context.Background(), searcher, nil, rec.replace, rec.publish)
	defer s.Close()

	s.Submit("bridge")
	s.Wait()

	if st := s.State(); st.Phase() != Failed || !st.HasSearched {
		t.Fatalf("unexpected state %+v", st)
	}
	if len(rec.urls) != 0 {
		t.Fatalf("url replaced after a failed search: %v", rec.urls)
	}
}

func TestSessionCloseAbandonsSearch(t *testing.T) {
	searcher := newScriptedSearcher()
	searcher.hold("slow")

	s := New(context.Background(), searcher, nil, nil, nil)
	s.Submit("slow")

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	if s.Submit("other") {
		t.Fatal("closed session accepted a search")
	}
}

func TestSessionRefreshRepublishes(t *testing.T) {
	rec := &recorder{}
	s := New(context.Background(), newScriptedSearcher(), &Seed{Query: "bridge", Images: bridge}, rec.replace, rec.publish)
	defer s.Close()

	s.Refresh()
	if len(rec.states) != 1 || rec.states[0].Query != "bridge" {
		t.Fatalf("unexpected published states %+v", rec.states)
	}
}
