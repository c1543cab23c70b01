package backend

import (
	"fmt"

	"elsa/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	cfg := Config{
		SQLiteDBPath: appConfig.SQLiteDBPath,

		Notifier:     NotifierType(appConfig.NotifyBackend),
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,

		RedisAddr:     appConfig.RedisAddr,
		RedisPassword: appConfig.RedisPassword,
		RedisDB:       appConfig.RedisDB,
		RedisPrefix:   appConfig.RedisPrefix,

		Destination: DestinationType(appConfig.ExportDest),
		ExportDir:   appConfig.ExportDir,

		S3Endpoint:     appConfig.S3Endpoint,
		S3Region:       appConfig.S3Region,
		S3Bucket:       appConfig.S3Bucket,
		S3Prefix:       appConfig.S3Prefix,
		S3AccessKey:    appConfig.S3AccessKey,
		S3SecretKey:    appConfig.S3SecretKey,
		S3UseSSL:       appConfig.S3UseSSL,
		S3UsePathStyle: appConfig.S3UsePathStyle,

		GoogleSpreadsheetID: appConfig.GoogleSpreadsheetID,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required")
	}
	if !c.Notifier.IsValid() {
		return fmt.Errorf("invalid notifier type: %s", c.Notifier)
	}
	if !c.Destination.IsValid() {
		return fmt.Errorf("invalid export destination: %s", c.Destination)
	}

	switch c.Notifier {
	case AMQPNotifier:
		if c.AMQPURL == "" || c.AMQPExchange == "" {
			return fmt.Errorf("AMQP URL and exchange are required for amqp notifier")
		}
	case RedisNotifier:
		if c.RedisAddr == "" {
			return fmt.Errorf("Redis address is required for redis notifier")
		}
	}

	switch c.Destination {
	case FileDestination:
		if c.ExportDir == "" {
			return fmt.Errorf("export directory is required for file destination")
		}
	case S3Destination:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 destination")
		}
	case SheetsDestination:
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets destination")
		}
	}

	return nil
}
