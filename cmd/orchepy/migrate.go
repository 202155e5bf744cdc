package main

import (
	"github.com/spf13/cobra"

	"github.com/derivia/orchepy/internal/config"
	"github.com/derivia/orchepy/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return store.Migrate(cfg.DatabaseURL)
	},
}
