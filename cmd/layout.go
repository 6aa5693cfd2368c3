package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sketchplanations/sketchweb/pkg/config"
	"github.com/sketchplanations/sketchweb/pkg/gallery"
	"github.com/urfave/cli/v3"
)

// LayoutCommand creates the layout command
func LayoutCommand() *cli.Command {
	return &cli.Command{
		Name:      "layout",
		Usage:     "Lay images given as WIDTHxHEIGHT out in justified rows",
		ArgsUsage: "WIDTHxHEIGHT...",
		Flags: []cli.Flag{
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
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			images, err := parseDimensions(c.Args().Slice())
			if err != nil {
				return err
			}
			p := galleryParams(cfg, c.Float("width"), c.Float("row-height"), c.Float("margin"))
			fmt.Print(formatRows(p.Layout(images), p))
			return nil
		},
	}
}

// parseDimensions reads WIDTHxHEIGHT arguments. Images are named by their
// position, starting at 1.
func parseDimensions(args []string) ([]gallery.Image, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one WIDTHxHEIGHT argument is required")
	}
	images := make([]gallery.Image, 0, len(args))
	for i, arg := range args {
		w, h, ok := strings.Cut(strings.ToLower(arg), "x")
		if !ok {
			return nil, fmt.Errorf("invalid dimensions %q, want WIDTHxHEIGHT", arg)
		}
		width, err := strconv.Atoi(w)
		if err != nil {
			return nil, fmt.Errorf("invalid width in %q: %w", arg, err)
		}
		height, err := strconv.Atoi(h)
		if err != nil {
			return nil, fmt.Errorf("invalid height in %q: %w", arg, err)
		}
		images = append(images, gallery.Image{
			UID:    strconv.Itoa(i + 1),
			Src:    "image-" + strconv.Itoa(i+1),
			Width:  width,
			Height: height,
		})
	}
	return images, nil
}
