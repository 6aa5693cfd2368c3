package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sketchplanations/sketchweb/pkg/config"
	"github.com/sketchplanations/sketchweb/pkg/search"
	"github.com/urfave/cli/v3"
)

// SearchCommand creates the search command
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search sketches and show the gallery they would be laid out in",
		ArgsUsage: "[query]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "query",
				Usage: "Search query (or pass it as arguments)",
			},
			&cli.FloatFlag{
				Name:  "width",
				Usage: "Gallery container width (default from gallery.container_width)",
			},
			&cli.FloatFlag{
				Name:  "row-height",
				Usage: "Target row height (default from gallery.target_row_height)",
			},
			&cli.FloatFlag{
				Name:  "margin",
				Usage: "Margin around each image (default from gallery.margin)",
				Value: -1,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the results as JSON",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			query := c.String("query")
			if query == "" {
				query = strings.Join(c.Args().Slice(), " ")
			}
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			p := galleryParams(cfg, c.Float("width"), c.Float("row-height"), c.Float("margin"))
			p.Query = query
			return searchSketches(ctx, cfg, p, c.Bool("json"))
		},
	}
}

// galleryParams starts from the configured gallery and applies the values
// given on the command line. Non-positive widths and heights, and negative
// margins, keep the configured value.
func galleryParams(cfg *config.Config, width, rowHeight, margin float64) search.Params {
	p := search.Params{
		ContainerWidth:  cfg.Gallery.ContainerWidth,
		TargetRowHeight: cfg.Gallery.TargetRowHeight,
		Margin:          cfg.Gallery.Margin,
	}
	if width > 0 {
		p.ContainerWidth = width
	}
	if rowHeight > 0 {
		p.TargetRowHeight = rowHeight
	}
	if margin >= 0 {
		p.Margin = margin
	}
	return p
}

// searchSketches runs one search and prints it
func searchSketches(ctx context.Context, cfg *config.Config, p search.Params, asJSON bool) error {
	if search.NormalizeQuery(p.Query) == "" {
		return fmt.Errorf("a search query is required")
	}

	executor, release, err := newExecutor(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()

	results, err := executor.Search(ctx, p)
	if err != nil {
		return fmt.Errorf("searching %q: %s: %w", p.Query, formatSearchError(err), err)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	fmt.Print(formatResults(results, p))
	return nil
}
