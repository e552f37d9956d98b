package main

import (
	"log"

	"github.com/spf13/cobra"
)

var (
	envFile string

	rootCmd = &cobra.Command{
		Use:          "lineage",
		Short:        "Versioned policy objects with module workspaces and acknowledged relations",
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE:  runMigrate,
	}

	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Drop and recreate the database, then apply the schema (development only)",
		RunE:  runReset,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "settings.env", "dotenv file with LINEAGE_* settings")
	resetCmd.Flags().Bool("yes", false, "confirm dropping the database")
	rootCmd.AddCommand(serveCmd, migrateCmd, resetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
