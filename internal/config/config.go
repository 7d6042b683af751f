package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Remote backends the sync module can talk to.
const (
	RemoteNone  = ""
	RemoteDrive = "drive"
	RemoteGCS   = "gcs"
)

// Defaults applied when the environment leaves a value unset.
const (
	DefaultDBPath       = "artho.db"
	DefaultModelName    = "gemini-2.5-flash"
	DefaultRemoteFolder = "Artho_Vault_Backups"
	DefaultRemoteFile   = "artho_backup_v1.json"
	DefaultPIN          = "0000"
	DefaultPort         = "8080"
	DefaultBQDataset    = "finance"
	DefaultBQTable      = "transactions"
)

// Config holds everything the binaries need to wire the tracker.
type Config struct {
	DBPath   string
	LogLevel string
	DemoData bool

	GeminiAPIKey string
	ModelName    string

	Remote       string
	GCSBucket    string
	RemoteFolder string
	RemoteFile   string
	TokenKey     string

	PIN  string
	Port string

	BigQueryProject string
	BigQueryDataset string
	BigQueryTable   string

	NotionToken          string
	NotionTransactionsDB string
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// Load reads an optional .env file from the working directory and then the
// process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("Load: reading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (Config, error) {
	demo, err := strconv.ParseBool(getenv("ARTHO_DEMO_DATA", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("FromEnv: ARTHO_DEMO_DATA: %w", err)
	}

	cfg := Config{
		DBPath:   getenv("ARTHO_DB_PATH", DefaultDBPath),
		LogLevel: getenv("ARTHO_LOG_LEVEL", "info"),
		DemoData: demo,

		GeminiAPIKey: getenv("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY")),
		ModelName:    getenv("ARTHO_MODEL", DefaultModelName),

		Remote:       strings.ToLower(strings.TrimSpace(os.Getenv("ARTHO_REMOTE"))),
		GCSBucket:    os.Getenv("GCS_BUCKET"),
		RemoteFolder: getenv("ARTHO_REMOTE_FOLDER", DefaultRemoteFolder),
		RemoteFile:   getenv("ARTHO_REMOTE_FILE", DefaultRemoteFile),
		TokenKey:     os.Getenv("ARTHO_TOKEN_KEY"),

		PIN:  getenv("ARTHO_PIN", DefaultPIN),
		Port: getenv("PORT", DefaultPort),

		BigQueryProject: os.Getenv("BIGQUERY_PROJECT"),
		BigQueryDataset: getenv("BIGQUERY_DATASET", DefaultBQDataset),
		BigQueryTable:   getenv("BIGQUERY_TABLE", DefaultBQTable),

		NotionToken:          os.Getenv("NOTION_TOKEN"),
		NotionTransactionsDB: os.Getenv("NOTION_TRANSACTIONS_DB"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Remote {
	case RemoteNone, RemoteDrive:
	case RemoteGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("Validate: ARTHO_REMOTE=gcs requires GCS_BUCKET")
		}
	default:
		return fmt.Errorf("Validate: unknown ARTHO_REMOTE %q (want drive, gcs or empty)", c.Remote)
	}
	if c.TokenKey != "" && len(c.TokenKey) < 32 {
		return fmt.Errorf("Validate: ARTHO_TOKEN_KEY must be at least 32 characters")
	}
	return nil
}

// SyncEnabled reports whether a remote backend is configured.
func (c Config) SyncEnabled() bool {
	return c.Remote != RemoteNone
}

// RemoteObject is the object path of the backup document inside the bucket.
func (c Config) RemoteObject() string {
	return c.RemoteFolder + "/" + c.RemoteFile
}
