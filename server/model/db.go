package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

// OpenDB opens (or creates) the gatelog database and runs migrations.
func OpenDB(log logs.Log, config dbh.DBConfig) (*gorm.DB, error) {
	if config.Database != "" && config.Host == "" {
		// sqlite file: make sure the parent directory exists
		os.MkdirAll(filepath.Dir(config.Database), 0777)
	}
	db, err := dbh.OpenDB(log, config, Migrations(log), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open database %v: %w", config.Database, err)
	}
	return db, nil
}
