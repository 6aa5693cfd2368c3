package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sketchplanations/sketchweb/pkg/config"
	"github.com/sketchplanations/sketchweb/pkg/prismic"
	"github.com/sketchplanations/sketchweb/pkg/warehouse"
	"github.com/urfave/cli/v3"
)

// SyncCommand creates the sync command
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Copy every sketch from the content repository into the local mirror",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "every",
				Usage: "Keep running and sync again at this interval",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Print every synced document",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return syncMirror(ctx, c.String("config"), c.Duration("every"), c.Bool("verbose"))
		},
	}
}

// syncMirror runs one sync, or a scheduler when every is set
func syncMirror(ctx context.Context, configPath string, every time.Duration, verbose bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client, err := newPrismicClient(cfg)
	if err != nil {
		return err
	}
	mirror, err := openMirror(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := mirror.Close(); err != nil {
			fmt.Printf("Warning: failed to close mirror: %v\n", err)
		}
	}()

	wh := warehouse.NewWarehouse(warehouse.Config{
		DocumentType:     cfg.Prismic.DocumentType,
		PageSize:         cfg.Prismic.PageSize,
		SyncInterval:     every,
		OptimizeInterval: cfg.Mirror.OptimizeInterval.Duration,
	}, client, mirror)

	if every <= 0 {
		var opts []warehouse.SyncOption
		if verbose {
			opts = append(opts, warehouse.WithStreaming(func(page []prismic.Document) {
				for _, doc := range page {
					fmt.Printf("  %s %s\n", doc.UID, metaStyle.Render(doc.Text("title")))
				}
			}))
		}
		res, err := wh.SyncOnce(ctx, opts...)
		if err != nil {
			return err
		}
		fmt.Println(summaryStyle.Render(fmt.Sprintf("Synced %d documents in %d pages, pruned %d, took %v",
			res.Documents, res.Pages, res.Pruned, res.Took.Round(time.Millisecond))))
		return nil
	}

	if err := wh.Start(ctx); err != nil {
		return fmt.Errorf("starting warehouse: %w", err)
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	wh.Stop()
	return nil
}
