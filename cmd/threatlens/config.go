package main

import (
	"time"

	"github.com/threatlens/threatlens/internal/model"
)

const (
	defaultBindHost            = "127.0.0.1"
	defaultTCPPort             = 4000
	defaultAPIPort             = 3000
	defaultMuxBufferSize       = DefaultMuxBuffer
	defaultQueryTimeout        = model.DefaultQueryTimeout
	defaultInsertBatchSize     = 2000
	defaultInsertFlushInterval = 100 * time.Millisecond
	defaultInsertFlushQueue    = 64
	defaultEntryRetention      = 30 // days, 0 = disabled
	defaultBackupInterval      = 6 * time.Hour
	defaultBackupKeepLast      = 24
	defaultClassifyTimeout     = 30 * time.Second
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Host          string `mapstructure:"host"`
	TCPEnabled    bool   `mapstructure:"tcp-enabled"`
	TCPPort       int    `mapstructure:"tcp-port"`
	TCPAddr       string `mapstructure:"tcp-addr"`
	MuxBufferSize int    `mapstructure:"mux-buffer-size"`

	APIEnabled bool   `mapstructure:"api-enabled"`
	APIPort    int    `mapstructure:"api-port"`
	APIAddr    string `mapstructure:"api-addr"`

	DBPath              string        `mapstructure:"db-path"`
	QueryTimeout        time.Duration `mapstructure:"query-timeout"`
	InsertBatchSize     int           `mapstructure:"insert-batch-size"`
	InsertFlushInterval time.Duration `mapstructure:"insert-flush-interval"`
	InsertFlushQueue    int           `mapstructure:"insert-flush-queue-size"`
	EntryRetention      int           `mapstructure:"entry-retention"`

	JournalEnabled bool   `mapstructure:"journal-enabled"`
	JournalPath    string `mapstructure:"journal-path"`

	// Classification cascade. A tier without an API key is skipped; the
	// rule engine always runs.
	Tier1APIKey     string        `mapstructure:"tier1-api-key"`
	Tier1Endpoint   string        `mapstructure:"tier1-endpoint"`
	Tier1Model      string        `mapstructure:"tier1-model"`
	Tier2APIKey     string        `mapstructure:"tier2-api-key"`
	Tier2Endpoint   string        `mapstructure:"tier2-endpoint"`
	Tier2Model      string        `mapstructure:"tier2-model"`
	ClassifyTimeout time.Duration `mapstructure:"classify-timeout"`
	PolicyPath      string        `mapstructure:"policy-path"`

	BackupEnabled        bool          `mapstructure:"backup-enabled"`
	BackupInterval       time.Duration `mapstructure:"backup-interval"`
	BackupLocalDir       string        `mapstructure:"backup-local-dir"`
	BackupKeepLast       int           `mapstructure:"backup-keep-last"`
	BackupBucketURL      string        `mapstructure:"backup-bucket-url"`
	BackupS3Endpoint     string        `mapstructure:"backup-s3-endpoint"`
	BackupS3Region       string        `mapstructure:"backup-s3-region"`
	BackupS3AccessKey    string        `mapstructure:"backup-s3-access-key"`
	BackupS3SecretKey    string        `mapstructure:"backup-s3-secret-key"`
	BackupS3SessionToken string        `mapstructure:"backup-s3-session-token"`
	BackupS3UseSSL       bool          `mapstructure:"backup-s3-use-ssl"`

	ConfigPath string `mapstructure:"-"` // not from config file
}
