package cmd

import (
	"context"
	"fmt"

	"github.com/sketchplanations/sketchweb/pkg/config"
	"github.com/sketchplanations/sketchweb/pkg/prismic"
	"github.com/sketchplanations/sketchweb/pkg/search"
	"github.com/sketchplanations/sketchweb/pkg/storage"
)

// newPrismicClient creates the repository client described by cfg.
func newPrismicClient(cfg *config.Config) (*prismic.Client, error) {
	client, err := prismic.NewClient(prismic.Options{
		Endpoint:          cfg.Prismic.Endpoint,
		AccessToken:       cfg.Prismic.AccessToken,
		Timeout:           cfg.Prismic.Timeout.Duration,
		RequestsPerSecond: cfg.Prismic.RequestsPerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("creating prismic client: %w", err)
	}
	return client, nil
}

// openMirror opens the local mirror named by cfg.
func openMirror(ctx context.Context, cfg *config.Config) (*storage.Mirror, error) {
	mirror, err := storage.OpenMirror(ctx, cfg.Mirror.Path)
	if err != nil {
		return nil, fmt.Errorf("opening mirror %s: %w", cfg.Mirror.Path, err)
	}
	return mirror, nil
}

// newExecutor builds a search executor over the mirror when it is enabled,
// the remote repository otherwise. The returned function releases it.
func newExecutor(ctx context.Context, cfg *config.Config) (*search.Executor, func(), error) {
	opts := []search.Option{
		search.WithDocumentType(cfg.Prismic.DocumentType),
		search.WithPageSize(cfg.Prismic.PageSize),
	}

	if cfg.Mirror.Enabled {
		mirror, err := openMirror(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, search.WithSource("mirror"))
		return search.NewExecutor(mirror, opts...), func() { mirror.Close() }, nil
	}

	client, err := newPrismicClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return search.NewExecutor(client, opts...), func() {}, nil
}
