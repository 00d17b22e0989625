package main

import (
	"fmt"

	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/cr4all/supportservices/config"
	"github.com/cr4all/supportservices/models"
	"github.com/cr4all/supportservices/server"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			_, closeDB, err := openMigrated(cfg)
			if err != nil {
				return err
			}
			defer closeDB()
			log.Infof("Schema up to date (%s)", cfg.Database.Driver)
			return nil
		},
	}
}

// openMigrated opens the configured database and migrates it.
func openMigrated(cfg *config.Config) (*gorm.DB, func(), error) {
	db, err := server.OpenDatabase(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if err := models.AutoMigrateAll(db); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("auto-migrate database: %w", err)
	}
	return db, closeDB, nil
}
