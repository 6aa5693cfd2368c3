// Package search runs sketch searches against the content repository and
// turns the answer into gallery images. The same Executor serves the
// server-rendered search page, the JSON API, live sessions and the CLI.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sketchplanations/sketchweb/pkg/cache"
	"github.com/sketchplanations/sketchweb/pkg/gallery"
	"github.com/sketchplanations/sketchweb/pkg/log"
	"github.com/sketchplanations/sketchweb/pkg/metrics"
	"github.com/sketchplanations/sketchweb/pkg/prismic"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"
)

const (
	DefaultDocumentType = "sketchplanation"
	DefaultPageSize     = 100
)

// ErrTransport marks a search that could not reach the repository or got an
// error answer back. It is distinct from a search with no matches.
var ErrTransport = errors.New("search request failed")

// Repository is where documents are searched: the remote API or the local
// mirror.
type Repository interface {
	SearchDocuments(ctx context.Context, docType, text string, pageSize int) ([]prismic.Document, error)
}

// Cache stores raw search answers by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]prismic.Document, bool)
	Set(ctx context.Context, key string, docs []prismic.Document)
}

// Executor issues one repository request per search.
type Executor struct {
	repo     Repository
	docType  string
	pageSize int
	cache    Cache
	source   string
	group    singleflight.Group
	l        *log.Logger
}

// Option customizes an Executor.
type Option func(*Executor)

// WithDocumentType restricts searches to one custom type.
func WithDocumentType(docType string) Option {
	return func(e *Executor) {
		if docType != "" {
			e.docType = docType
		}
	}
}

// WithPageSize sets how many documents a search asks for.
func WithPageSize(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithCache puts c in front of the repository. A nil c disables caching.
func WithCache(c Cache) Option {
	return func(e *Executor) {
		e.cache = c
	}
}

// WithSource names the repository in metrics and logs.
func WithSource(name string) Option {
	return func(e *Executor) {
		if name != "" {
			e.source = name
		}
	}
}

// NewExecutor creates an executor searching repo.
func NewExecutor(repo Repository, opts ...Option) *Executor {
	e := &Executor{
		repo:     repo,
		docType:  DefaultDocumentType,
		pageSize: DefaultPageSize,
		source:   "prismic",
		l:        log.ForService("search"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DocumentType returns the custom type searches are restricted to.
func (e *Executor) DocumentType() string {
	return e.docType
}

// NormalizeQuery trims q and puts it in Unicode NFC so that visually equal
// queries are searched, cached and collapsed as one.
func NormalizeQuery(q string) string {
	return norm.NFC.String(strings.TrimSpace(q))
}

// Execute searches the repository for query and returns the raw documents.
//
// A blank query returns no documents without contacting the repository.
// Failures to reach the repository are wrapped in ErrTransport and are never
// retried. A response that cannot be decoded is logged and treated as a search
// with no matches. Identical searches running at the same time share a single
// repository request.
func (e *Executor) Execute(ctx context.Context, query string) ([]prismic.Document, error) {
	q := NormalizeQuery(query)
	if q == "" {
		return []prismic.Document{}, nil
	}

	key := cache.Key(e.docType, q)
	if e.cache != nil {
		if docs, ok := e.cache.Get(ctx, key); ok {
			e.l.Debugf("cache hit for %q", q)
			metrics.RecordSearch(e.source, metrics.OutcomeCached, len(docs), 0)
			return docs, nil
		}
	}

	// The shared request outlives any single caller; each caller still
	// gives up when its own context ends.
	ch := e.group.DoChan(key, func() (any, error) {
		return e.fetch(context.WithoutCancel(ctx), key, q)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			e.l.Debugf("collapsed duplicate search for %q", q)
		}
		return res.Val.([]prismic.Document), nil
	}
}

func (e *Executor) fetch(ctx context.Context, key, q string) ([]prismic.Document, error) {
	start := time.Now()
	docs, err := e.repo.SearchDocuments(ctx, e.docType, q, e.pageSize)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		if errors.Is(err, prismic.ErrMalformedResponse) {
			e.l.Errorf("unreadable results for %q: %v", q, err)
			metrics.RecordSearch(e.source, metrics.OutcomeMalformed, 0, elapsed)
			return []prismic.Document{}, nil
		}
		e.l.Warnf("search for %q failed: %v", q, err)
		metrics.RecordSearch(e.source, metrics.OutcomeFailed, 0, elapsed)
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if docs == nil {
		docs = []prismic.Document{}
	}

	outcome := metrics.OutcomeResults
	if len(docs) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	metrics.RecordSearch(e.source, outcome, len(docs), elapsed)
	e.l.Debugf("%q: %d documents in %.3fs", q, len(docs), elapsed)

	if e.cache != nil {
		e.cache.Set(ctx, key, docs)
	}
	return docs, nil
}

// Images runs Execute and maps the documents to gallery images.
func (e *Executor) Images(ctx context.Context, query string) ([]gallery.Image, error) {
	docs, err := e.Execute(ctx, query)
	if err != nil {
		return nil, err
	}
	images := gallery.Map(docs)
	metrics.RecordDropped(len(docs) - len(images))
	return images, nil
}

// Search runs a full search for p: images plus their gallery rows.
func (e *Executor) Search(ctx context.Context, p Params) (*Results, error) {
	images, err := e.Images(ctx, p.Query)
	if err != nil {
		return nil, err
	}
	return NewResults(p, images), nil
}
