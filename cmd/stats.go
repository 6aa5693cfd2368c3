package cmd

import (
	"context"
	"fmt"

	"github.com/sketchplanations/sketchweb/pkg/config"
	"github.com/urfave/cli/v3"
)

// StatsCommand creates the stats command
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show what the local mirror holds",
		Action: func(ctx context.Context, c *cli.Command) error {
			return showStats(ctx, c.String("config"))
		},
	}
}

// showStats displays mirror statistics
func showStats(ctx context.Context, configPath string) error {
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

	stats, err := mirror.Stats(ctx)
	if err != nil {
		return fmt.Errorf("getting stats: %w", err)
	}

	fmt.Print(formatStats(stats, cfg.Mirror.Path))
	return nil
}
