package server

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cyclopcam/dbh"
)

type Config struct {
	DB dbh.DBConfig `json:"db"`

	// pwdhash.HashPasswordBase64 of the admin site password.
	// Use cmd/pwdhash to generate one. If this is empty, admin login
	// responds with a 500 until the server is configured.
	AdminPasswordHash string `json:"adminPasswordHash"`

	PhotoStorage StorageConfig `json:"photoStorage"`

	// Optional HR directory used to prefill staff details
	HR *HRConfig `json:"hr"`
}

// One of the storage options must be configured (i.e. either 'filesystem' or 'gcs')
type StorageConfig struct {
	Filesystem *StorageConfigFS  `json:"filesystem"`
	GCS        *StorageConfigGCS `json:"gcs"`
}

type StorageConfigFS struct {
	Root string `json:"root"` // Path to the root of the filesystem
}

type StorageConfigGCS struct {
	Bucket string `json:"bucket"` // Name of the GCS bucket
}

type HRConfig struct {
	URL    string `json:"url"`
	APIKey string `json:"apiKey"`
}

const defaultDBFilename = "gatelog.sqlite"
const defaultPhotoRoot = "photos"

// loadConfig reads the JSON config file (when given), then applies
// environment overrides, then fills in defaults. Environment variables are
// the convenient path for container deployments and for the .env file that
// cmd/gatelog loads.
func loadConfig(configFile string) (*Config, error) {
	cfg := &Config{}
	if configFile != "" {
		raw, err := os.ReadFile(configFile)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("Error parsing config file %v: %w", configFile, err)
		}
	}
	if v := os.Getenv("GATELOG_DB"); v != "" {
		cfg.DB = dbh.MakeSqliteConfig(v)
	}
	if v := os.Getenv("GATELOG_ADMIN_PASSWORD_HASH"); v != "" {
		cfg.AdminPasswordHash = v
	}
	if v := os.Getenv("GATELOG_PHOTO_ROOT"); v != "" {
		cfg.PhotoStorage = StorageConfig{Filesystem: &StorageConfigFS{Root: v}}
	}
	if v := os.Getenv("GATELOG_HR_URL"); v != "" {
		cfg.HR = &HRConfig{URL: v, APIKey: os.Getenv("GATELOG_HR_API_KEY")}
	}
	if cfg.DB.Driver == "" && cfg.DB.Database == "" {
		cfg.DB = dbh.MakeSqliteConfig(defaultDBFilename)
	}
	if cfg.PhotoStorage.Filesystem == nil && cfg.PhotoStorage.GCS == nil {
		cfg.PhotoStorage = StorageConfig{Filesystem: &StorageConfigFS{Root: defaultPhotoRoot}}
	}
	return cfg, nil
}
