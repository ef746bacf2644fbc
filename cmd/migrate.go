package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JohanValero/research-agent/db"
	"github.com/JohanValero/research-agent/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err = cfg.Validate(); err != nil {
			return fmt.Errorf("validating config: %w", err)
		}

		if err := db.Migrate(cfg.PostgresURL()); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}

		fmt.Println("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
