package cmd

import (
	"context"
	"fmt"

	"github.com/sketchplanations/sketchweb/pkg/version"
	"github.com/urfave/cli/v3"
)

// VersionCommand creates the version command
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Also print the API version",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			fmt.Println(version.BuildVersion())
			if c.Bool("verbose") {
				fmt.Printf("api version: %s\n", version.APIVersion())
			}
			return nil
		},
	}
}
