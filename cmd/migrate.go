package cmd

import (
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vibast-solutions/ms-go-payment-gateway/config"
	"github.com/vibast-solutions/ms-go-payment-gateway/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Run: func(_ *cobra.Command, _ []string) {
		runMigrations(migrate.Up)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back all applied migrations",
	Run: func(_ *cobra.Command, _ []string) {
		runMigrations(migrate.Down)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}

func runMigrations(direction migrate.MigrationDirection) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db := mustOpenDB(cfg)
	defer db.Close()

	source := migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrations.SQLFiles,
		Root:       migrations.Root,
	}
	n, err := migrate.Exec(db, "mysql", source, direction)
	if err != nil {
		logrus.WithError(err).Fatal("Migration failed")
	}
	logrus.WithField("applied", n).Info("Migrations complete")
}
