package storage

// Config holds configuration for the cloud snapshot store.
type Config struct {
	// Endpoint is the URL of the storage service.
	Endpoint string `mapstructure:"endpoint" default:"localhost:9000"`
	// AccessKey is the access key ID for authentication.
	AccessKey string `mapstructure:"access_key" default:"minioadmin"`
	// SecretKey is the secret access key for authentication.
	SecretKey string `mapstructure:"secret_key" default:"minioadmin"`
	// UseSSL indicates whether to use SSL/TLS for connections.
	UseSSL bool `mapstructure:"use_ssl" default:"false"`
	// Bucket is the name of the bucket holding snapshot files.
	Bucket string `mapstructure:"bucket" default:"backups"`
	// Prefix is the folder under which snapshot files are stored.
	Prefix string `mapstructure:"prefix" default:"snapshots/"`
	// Region is the location of the bucket (e.g., us-east-1).
	Region string `mapstructure:"region" default:""`
	// TimeoutSeconds is the connection timeout in seconds.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
	// MaxSnapshotMB caps the decoded size of a fetched snapshot.
	MaxSnapshotMB int `mapstructure:"max_snapshot_mb" default:"256"`
}

// MaxSnapshotBytes returns the snapshot size limit in bytes, 256 MB when unset.
func (c Config) MaxSnapshotBytes() int64 {
	if c.MaxSnapshotMB <= 0 {
		return 256 << 20
	}
	return int64(c.MaxSnapshotMB) << 20
}
