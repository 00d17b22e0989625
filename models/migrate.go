package models

import "gorm.io/gorm"

func AutoMigrateAll(db *gorm.DB) error {
	err := db.AutoMigrate(
		&ChatSession{},
		&ChatMessage{},
		&Operator{},
	)
	if err != nil {
		return err
	}
	return nil
}
