package config

import (
	"reflect"
	"strings"

	"restore-manager/core/database"
	"restore-manager/core/logger"
	"restore-manager/core/server"
	"restore-manager/core/storage"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Server holds configuration for the HTTP server.
	Server server.Config `mapstructure:"server"`
	// Storage holds configuration for the cloud snapshot store (S3, MinIO).
	Storage storage.Config `mapstructure:"storage"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds configuration for the local record database.
	Database database.Config `mapstructure:"database"`
	// Restore holds configuration for the restore engine.
	Restore RestoreConfig `mapstructure:"restore"`
}

// RestoreConfig holds the restore engine settings: where local records live,
// how many backups are retained, and how long fetched cloud snapshots are cached.
type RestoreConfig struct {
	// StoreDriver selects the local record store (database, file, memory).
	StoreDriver string `mapstructure:"store_driver" default:"database"`
	// StorePath is the directory used by the file store.
	StorePath string `mapstructure:"store_path" default:"./data"`
	// BackupRetention is the number of local pre-apply backups kept.
	BackupRetention int `mapstructure:"backup_retention" default:"5"`
	// CloudRetention is the number of cloud snapshots kept after an upload.
	// Zero disables cloud pruning.
	CloudRetention int `mapstructure:"cloud_retention" default:"10"`
	// CacheTTLSeconds is how long a fetched cloud snapshot is reused.
	// Zero disables caching.
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds" default:"300"`
}

const (
	StoreDriverDatabase = "database"
	StoreDriverFile     = "file"
	StoreDriverMemory   = "memory"
)

// IsValidStoreDriver checks if the configured store driver is supported.
func (c RestoreConfig) IsValidStoreDriver() bool {
	switch c.StoreDriver {
	case StoreDriverDatabase, StoreDriverFile, StoreDriverMemory:
		return true
	default:
		return false
	}
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. SERVER_PORT -> server.port)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, field.Tag.Get("default"))
	}
}
