package models

import (
	"github.com/smartsetter/ssot_backend/config"
)

// MigrateTable migrates every model and ensures the PostGIS extension the
// location columns depend on.
func MigrateTable() error {
	db := config.GetDB()

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS postgis").Error; err != nil {
		return err
	}

	return db.AutoMigrate(
		&MLS{},
		&Brand{},
		&Zipcode{},
		&Office{},
		&Agent{},
		&Transaction{},
		&ChangeWebhook{},
	)
}
