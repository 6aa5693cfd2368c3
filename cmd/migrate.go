package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/sketchplanations/sketchweb/pkg/config"
	"github.com/sketchplanations/sketchweb/pkg/db"
	"github.com/sketchplanations/sketchweb/pkg/storage"
	"github.com/urfave/cli/v3"
)

// MigrateCommand creates the migrate command
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply schema migrations to the local mirror",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "status",
				Usage: "Show migration status without applying migrations",
				Value: false,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return RunMigrations(ctx, c.String("config"), c.Bool("status"))
		},
	}
}

// RunMigrations handles the migration process (exported for testing)
func RunMigrations(ctx context.Context, configPath string, statusOnly bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if _, err := os.Stat(cfg.Mirror.Path); os.IsNotExist(err) {
		fmt.Printf("Database does not exist, will be created on first use: %s\n", cfg.Mirror.Path)
		return nil
	}

	mirror, err := storage.OpenMirrorWithoutMigrations(ctx, cfg.Mirror.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := mirror.Close(); err != nil {
			fmt.Printf("Warning: failed to close mirror: %v\n", err)
		}
	}()

	migrationManager := db.NewMigrationManager(mirror.DB())
	if err := migrationManager.EnsureMigrationsTable(ctx); err != nil {
		return err
	}

	if statusOnly {
		if err := showMigrationStatus(ctx, migrationManager); err != nil {
			return fmt.Errorf("showing migration status: %w", err)
		}
		fmt.Println("\nMigration status check completed")
		return nil
	}

	if err := migrationManager.ApplyPendingMigrations(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	fmt.Println("All migrations completed successfully")
	return nil
}

// showMigrationStatus displays the current migration status
func showMigrationStatus(ctx context.Context, manager *db.MigrationManager) error {
	status, err := manager.GetMigrationStatus(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Applied migrations: %d\n", len(status.Applied))
	for _, migration := range status.Applied {
		appliedTime := "unknown"
		if migration.AppliedAt != nil {
			appliedTime = migration.AppliedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("  ✓ %03d: %s (applied: %s)\n", migration.Version, migration.Name, appliedTime)
	}

	fmt.Printf("Pending migrations: %d\n", len(status.Pending))
	for _, migration := range status.Pending {
		fmt.Printf("  • %03d: %s\n", migration.Version, migration.Name)
	}

	if len(status.Pending) == 0 {
		fmt.Println("  (none - database is up to date)")
	}

	return nil
}
