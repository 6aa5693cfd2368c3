// Package warehouse keeps the local mirror in step with the content
// repository: a full sync on start, then one every SyncInterval, plus
// periodic index optimization.
package warehouse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sketchplanations/sketchweb/pkg/log"
	"github.com/sketchplanations/sketchweb/pkg/prismic"
)

// Source pages through every document of a type.
type Source interface {
	Each(ctx context.Context, docType string, pageSize int, fn func(page []prismic.Document) error) error
}

// Store is where synced documents end up.
type Store interface {
	Upsert(ctx context.Context, docs []prismic.Document) error
	Prune(ctx context.Context, docType string, since time.Time) (int, error)
	SetLastSync(ctx context.Context, t time.Time) error
	Optimize(ctx context.Context) error
}

type Config struct {
	DocumentType     string
	PageSize         int
	SyncInterval     time.Duration // 0 disables scheduled syncs
	OptimizeInterval time.Duration
}

// Result summarizes one full sync.
type Result struct {
	Documents int
	Pages     int
	Pruned    int
	Started   time.Time
	Took      time.Duration
}

type Warehouse struct {
	config Config
	source Source
	store  Store
	l      *log.Logger

	syncMu sync.Mutex

	mu        sync.Mutex
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	last      *Result
}

func NewWarehouse(config Config, source Source, store Store) *Warehouse {
	if config.DocumentType == "" {
		config.DocumentType = "sketchplanation"
	}
	if config.PageSize <= 0 {
		config.PageSize = 100
	}
	return &Warehouse{
		config: config,
		source: source,
		store:  store,
		l:      log.ForService("warehouse"),
	}
}

// SyncOption customizes a single sync.
type SyncOption func(*syncOptions)

type syncOptions struct {
	onPage func([]prismic.Document)
}

// WithStreaming calls callback with every page before it is stored.
func WithStreaming(callback func(page []prismic.Document)) SyncOption {
	return func(opts *syncOptions) {
		opts.onPage = callback
	}
}

// SyncOnce copies every document of the configured type into the store and
// prunes the ones that disappeared upstream. A sync that fails half way
// keeps what it stored and prunes nothing. Concurrent calls run one at a
// time.
func (w *Warehouse) SyncOnce(ctx context.Context, options ...SyncOption) (*Result, error) {
	opts := &syncOptions{}
	for _, opt := range options {
		opt(opts)
	}

	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	res := &Result{Started: time.Now()}
	err := w.source.Each(ctx, w.config.DocumentType, w.config.PageSize, func(page []prismic.Document) error {
		if opts.onPage != nil {
			opts.onPage(page)
		}
		if err := w.store.Upsert(ctx, page); err != nil {
			return fmt.Errorf("storing page %d: %w", res.Pages+1, err)
		}
		res.Pages++
		res.Documents += len(page)
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("syncing %s: %w", w.config.DocumentType, err)
	}

	pruned, err := w.store.Prune(ctx, w.config.DocumentType, res.Started)
	if err != nil {
		return res, fmt.Errorf("pruning %s: %w", w.config.DocumentType, err)
	}
	res.Pruned = pruned

	if err := w.store.SetLastSync(ctx, res.Started); err != nil {
		return res, fmt.Errorf("recording sync time: %w", err)
	}
	res.Took = time.Since(res.Started)

	w.mu.Lock()
	w.last = res
	w.mu.Unlock()

	w.l.Infof("synced %d %s documents in %d pages (%d pruned) in %v",
		res.Documents, w.config.DocumentType, res.Pages, res.Pruned, res.Took.Round(time.Millisecond))
	return res, nil
}

// LastSync returns the result of the latest successful sync, if any.
func (w *Warehouse) LastSync() (*Result, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last, w.last != nil
}

// Start runs an initial sync in the background and schedules the next ones.
func (w *Warehouse) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("warehouse is already running")
	}

	ctx, w.ctxCancel = context.WithCancel(ctx)
	w.running = true

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if _, err := w.SyncOnce(ctx); err != nil && ctx.Err() == nil {
			w.l.Errorf("initial sync failed: %v", err)
		}
	}()

	if w.config.SyncInterval > 0 {
		w.wg.Add(1)
		go w.every(ctx, w.config.SyncInterval, "sync", func(ctx context.Context) error {
			_, err := w.SyncOnce(ctx)
			return err
		})
	}
	if w.config.OptimizeInterval > 0 {
		w.wg.Add(1)
		go w.every(ctx, w.config.OptimizeInterval, "optimization", w.store.Optimize)
	}

	w.l.Infof("warehouse started, sync interval: %v, optimize interval: %v",
		w.config.SyncInterval, w.config.OptimizeInterval)
	return nil
}

func (w *Warehouse) every(ctx context.Context, interval time.Duration, name string, fn func(context.Context) error) {
	defer w.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.l.Debugf("running scheduled %s", name)
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				w.l.Errorf("scheduled %s failed: %v", name, err)
			}
		}
	}
}

// Stop cancels scheduled work and waits for it to finish.
func (w *Warehouse) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.ctxCancel()
	w.running = false
	w.mu.Unlock()

	w.wg.Wait()
	w.l.Infof("warehouse stopped")
}

func (w *Warehouse) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
