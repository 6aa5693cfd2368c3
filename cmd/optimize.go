package cmd

import (
	"context"
	"fmt"

	"github.com/sketchplanations/sketchweb/pkg/config"
	"github.com/sketchplanations/sketchweb/pkg/storage"
	"github.com/urfave/cli/v3"
)

// OptimizeCommand creates the optimize command
func OptimizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "optimize",
		Usage: "Mirror database optimization and maintenance commands",
		Commands: []*cli.Command{
			{
				Name:  "check",
				Usage: "Run integrity checks on the mirror",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "quick",
						Usage: "Skip deep FTS5-specific integrity checks",
						Value: false,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withMirror(ctx, c.String("config"), func(m *storage.Mirror) error {
						return checkMirror(ctx, m, !c.Bool("quick"))
					})
				},
			},
			{
				Name:  "fts-rebuild",
				Usage: "Rebuild the full-text index",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Force rebuild without checking first (skips integrity check)",
						Value: false,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withMirror(ctx, c.String("config"), func(m *storage.Mirror) error {
						return rebuildFTS(ctx, m, c.Bool("force"))
					})
				},
			},
			{
				Name:  "analyze",
				Usage: "Run ANALYZE to update query planner statistics",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withMirror(ctx, c.String("config"), func(m *storage.Mirror) error {
						return runStep("ANALYZE", func() error { return m.Analyze(ctx) })
					})
				},
			},
			{
				Name:  "vacuum",
				Usage: "Run VACUUM to defragment the database",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withMirror(ctx, c.String("config"), func(m *storage.Mirror) error {
						if err := runStep("WAL checkpoint", func() error { return m.WALCheckpoint(ctx) }); err != nil {
							return err
						}
						return runStep("VACUUM", func() error { return m.Vacuum(ctx) })
					})
				},
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withMirror(ctx, c.String("config"), func(m *storage.Mirror) error {
				if err := runStep("index optimize", func() error { return m.Optimize(ctx) }); err != nil {
					return err
				}
				return runStep("ANALYZE", func() error { return m.Analyze(ctx) })
			})
		},
	}
}

func withMirror(ctx context.Context, configPath string, fn func(*storage.Mirror) error) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
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
	return fn(mirror)
}

func runStep(name string, fn func() error) error {
	fmt.Printf("Running %s... ", name)
	if err := fn(); err != nil {
		fmt.Printf("✗ FAILED - %v\n", err)
		return fmt.Errorf("%s failed: %w", name, err)
	}
	fmt.Println("✓ OK")
	return nil
}

// checkMirror runs integrity checks on the mirror
func checkMirror(ctx context.Context, m *storage.Mirror, deepFTS bool) error {
	if err := runStep("integrity check", func() error { return m.IntegrityCheck(ctx) }); err != nil {
		return err
	}
	if !deepFTS {
		fmt.Println("Quick mode, skipping FTS checks")
		return nil
	}
	if err := runStep("FTS integrity check", func() error { return m.FTSIntegrityCheck(ctx) }); err != nil {
		fmt.Println("To fix FTS index corruption, run: sketchweb optimize fts-rebuild")
		return err
	}
	return nil
}

// rebuildFTS rebuilds the full-text index, only when it is damaged unless
// force is set.
func rebuildFTS(ctx context.Context, m *storage.Mirror, force bool) error {
	if !force {
		fmt.Print("Checking FTS index... ")
		err := m.FTSIntegrityCheck(ctx)
		if err == nil {
			fmt.Println("✓ OK (no rebuild needed)")
			return nil
		}
		fmt.Printf("✗ NEEDS REBUILD - %v\n", err)
	}
	return runStep("FTS rebuild", func() error { return m.FTSRebuild(ctx) })
}
