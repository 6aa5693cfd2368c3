package session

import (
	"context"
	"sync"

	"github.com/sketchplanations/sketchweb/pkg/gallery"
	"github.com/sketchplanations/sketchweb/pkg/log"
)

// Searcher runs a search and returns gallery images.
type Searcher interface {
	Images(ctx context.Context, query string) ([]gallery.Image, error)
}

// URLReplacer swaps the query of the page URL without adding a history entry.
type URLReplacer func(query string)

// Publisher receives every new state.
type Publisher func(State)

// Session drives the State of one page view. The replacer and publisher are
// called with the session lock held, in the order states change; they must
// not call back into the Session.
type Session struct {
	searcher Searcher
	replace  URLReplacer
	publish  Publisher
	l        *log.Logger

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

// New creates a session seeded with the search the page was rendered with.
// Closing ctx or calling Close abandons outstanding searches.
func New(ctx context.Context, searcher Searcher, seed *Seed, replace URLReplacer, publish Publisher) *Session {
	if replace == nil {
		replace = func(string) {}
	}
	if publish == nil {
		publish = func(State) {}
	}
	ctx, stop := context.WithCancel(ctx)
	return &Session{
		searcher: searcher,
		replace:  replace,
		publish:  publish,
		l:        log.ForService("session"),
		ctx:      ctx,
		stop:     stop,
		state:    Initial(seed),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Edit records the search box contents.
func (s *Session) Edit(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = s.state.EditQuery(text)
	s.publish(s.state)
}

// Refresh publishes the current state again, for example after the page
// changed its gallery width.
func (s *Session) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(s.state)
}

// Submit starts a search for query in the background and reports whether one
// was started. A search still running for an older query is cancelled and its
// outcome ignored.
func (s *Session) Submit(query string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return false
	}
	next, req, ok := s.state.Submit(query)
	if !ok {
		return false
	}
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancel = cancel
	s.state = next
	s.publish(s.state)

	s.wg.Add(1)
	go s.run(ctx, req)
	return true
}

func (s *Session) run(ctx context.Context, req Request) {
	defer s.wg.Done()

	images, err := s.searcher.Images(ctx, req.Query)
	if ctx.Err() != nil {
		s.l.Debugf("search %d for %q abandoned", req.Seq, req.Query)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next, applied := s.state.Resolve(Resolution{Seq: req.Seq, Query: req.Query, Images: images, Err: err})
	if !applied {
		s.l.Debugf("discarding stale result %d for %q", req.Seq, req.Query)
		return
	}
	s.state = next
	if err != nil {
		s.l.Warnf("search for %q failed: %v", req.Query, err)
	} else {
		s.replace(req.Query)
	}
	s.publish(s.state)
}

// Wait blocks until no search is running.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close cancels outstanding searches and waits for them to return.
func (s *Session) Close() {
	s.mu.Lock()
	s.stop()
	s.mu.Unlock()
	s.wg.Wait()
}
