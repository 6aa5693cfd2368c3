// Package session keeps the search state of one page view in step with the
// searches it fires. State is a value with pure transitions; Session drives it
// from a live connection, running searches and reporting every change.
package session

import (
	"net/url"
	"strings"

	"github.com/sketchplanations/sketchweb/pkg/gallery"
	"github.com/sketchplanations/sketchweb/pkg/search"
)

// Phase summarizes a State.
type Phase int

const (
	// Idle: nothing searched yet.
	Idle Phase = iota
	// Searching: a request is outstanding.
	Searching
	// Results: the last search completed, possibly with no images.
	Results
	// Failed: the last search could not be completed.
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Results:
		return "results"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Seed is a search the server already ran while rendering the page.
type Seed struct {
	Query  string
	Images []gallery.Image
	Err    error
}

// Request is a search to run. Seq identifies it among the requests issued
// by one State.
type Request struct {
	Seq   uint64
	Query string
}

// Resolution is the outcome of a Request.
type Resolution struct {
	Seq    uint64
	Query  string
	Images []gallery.Image
	Err    error
}

// State is the search state of one page view.
//
// Query is the query Results answer, Input the text currently in the search
// box. HasSearched turns true with the first completed search and stays true.
type State struct {
	Query       string
	Input       string
	Results     []gallery.Image
	IsSearching bool
	HasSearched bool
	Err         error

	seq     uint64
	pending string
}

// Initial returns the state a page starts in. Without a seed, or with a seed
// for a blank query, nothing has been searched yet.
func Initial(seed *Seed) State {
	if seed == nil || search.NormalizeQuery(seed.Query) == "" {
		return State{}
	}
	q := search.NormalizeQuery(seed.Query)
	s := State{
		Query:       q,
		Input:       q,
		HasSearched: true,
		Err:         seed.Err,
	}
	if seed.Err == nil {
		s.Results = seed.Images
	}
	return s
}

// Phase reports which phase s is in.
func (s State) Phase() Phase {
	switch {
	case s.IsSearching:
		return Searching
	case s.Err != nil:
		return Failed
	case s.HasSearched:
		return Results
	default:
		return Idle
	}
}

// Pending returns the query of the outstanding request, if any.
func (s State) Pending() string {
	return s.pending
}

// EditQuery records what the user typed. It never searches.
func (s State) EditQuery(text string) State {
	s.Input = text
	return s
}

// Submit starts a search for query. It reports false and leaves s untouched
// when query is blank, or when the same query is already being searched.
func (s State) Submit(query string) (State, Request, bool) {
	q := search.NormalizeQuery(query)
	if q == "" {
		return s, Request{}, false
	}
	if s.IsSearching && s.pending == q {
		return s, Request{}, false
	}
	s.seq++
	s.pending = q
	s.IsSearching = true
	return s, Request{Seq: s.seq, Query: q}, true
}

// Resolve applies the outcome of the latest request. Outcomes of requests
// that were superseded by a later Submit are discarded and reported false.
// A failed search clears Results and keeps the error.
func (s State) Resolve(r Resolution) (State, bool) {
	if !s.IsSearching || r.Seq != s.seq {
		return s, false
	}
	s.IsSearching = false
	s.pending = ""
	s.HasSearched = true
	s.Query = r.Query
	s.Err = r.Err
	if r.Err != nil {
		s.Results = nil
		return s, true
	}
	s.Results = r.Images
	if s.Results == nil {
		s.Results = []gallery.Image{}
	}
	return s, true
}

// QueryURL returns path with q as its only query parameter, encoded the way
// browsers encode a URI component.
func QueryURL(path, q string) string {
	if q == "" {
		return path
	}
	return path + "?q=" + strings.ReplaceAll(url.QueryEscape(q), "+", "%20")
}
