package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"WaveFM/config"
	"WaveFM/db"
	"WaveFM/model"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long:  `Connects to MySQL and creates the tracks, stations, queue_entries, and play_history tables if they do not exist.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("Migrating database %s on %s:%s\n", cfg.DBName, cfg.DBHost, cfg.DBPort)

		if err := db.ConnectDB(cfg); err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.CloseDB()

		if err := db.InitDB(); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}

		if err := db.ConnectGormDB(cfg); err != nil {
			log.Fatalf("Failed to connect gorm: %v", err)
		}
		defer db.CloseGormDB()

		if err := db.AutoMigrateModels(&model.PlayHistoryEntry{}); err != nil {
			log.Fatalf("Failed to migrate models: %v", err)
		}

		fmt.Println("Migration complete.")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
