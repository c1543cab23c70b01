package backend

import (
	"context"

	"elsa/internal/notify"
	"elsa/internal/sink"
	"elsa/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result holds the wired store and change broker. The store publishes its
// writes through Broker.
type Result struct {
	Store   *storage.SQLiteRepository
	Broker  notify.Broker
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
	CreateSink(ctx context.Context, config Config) (sink.Sink, error)
}

// Config holds configuration for backend creation
type Config struct {
	SQLiteDBPath string

	Notifier NotifierType

	AMQPURL      string
	AMQPExchange string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	Destination DestinationType
	ExportDir   string

	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3Prefix       string
	S3AccessKey    string
	S3SecretKey    string
	S3UseSSL       bool
	S3UsePathStyle bool

	GoogleSpreadsheetID string
}

// NotifierType selects the change notification transport.
type NotifierType string

const (
	MemoryNotifier NotifierType = "memory"
	AMQPNotifier   NotifierType = "amqp"
	RedisNotifier  NotifierType = "redis"
)

// String implements fmt.Stringer
func (nt NotifierType) String() string {
	return string(nt)
}

// IsValid returns true if the notifier type is valid
func (nt NotifierType) IsValid() bool {
	switch nt {
	case MemoryNotifier, AMQPNotifier, RedisNotifier:
		return true
	default:
		return false
	}
}

// DestinationType selects where export files go.
type DestinationType string

const (
	FileDestination   DestinationType = "file"
	S3Destination     DestinationType = "s3"
	SheetsDestination DestinationType = "sheets"
)

func (dt DestinationType) String() string {
	return string(dt)
}

func (dt DestinationType) IsValid() bool {
	switch dt {
	case FileDestination, S3Destination, SheetsDestination:
		return true
	default:
		return false
	}
}
