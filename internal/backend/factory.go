package backend

import (
	"context"
	"errors"
	"fmt"

	"elsa/internal/amqp"
	applog "elsa/internal/log"
	"elsa/internal/notify"
	"elsa/internal/notify/memory"
	"elsa/internal/notify/redis"
	"elsa/internal/sink"
	"elsa/internal/sink/google"
	"elsa/internal/sink/s3"
	"elsa/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	return &DefaultFactory{
		logger: applog.OrNop(logger).WithComponent(applog.ComponentBackend),
	}
}

// CreateBackend opens the broker first so the store can publish through it.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	broker, err := f.createBroker(ctx, config)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteRepository(config.SQLiteDBPath,
		storage.WithPublisher(broker),
		storage.WithLogger(f.logger))
	if err != nil {
		broker.Close()
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized backend",
		"db_path", config.SQLiteDBPath,
		"notifier", config.Notifier.String())

	return &Result{
		Store:  store,
		Broker: broker,
		Cleanup: func() error {
			return errors.Join(store.Close(), broker.Close())
		},
	}, nil
}

func (f *DefaultFactory) createBroker(ctx context.Context, config Config) (notify.Broker, error) {
	switch config.Notifier {
	case MemoryNotifier:
		return memory.New(), nil
	case AMQPNotifier:
		client, err := amqp.NewClient(ctx, config.AMQPURL, config.AMQPExchange, amqp.WithLogger(f.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		}
		f.logger.Info("Initialized AMQP notifier", "exchange", config.AMQPExchange)
		return client, nil
	case RedisNotifier:
		n, err := redis.New(redis.Config{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		}, redis.WithPrefix(config.RedisPrefix), redis.WithLogger(f.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis notifier: %w", err)
		}
		f.logger.Info("Initialized Redis notifier", "addr", config.RedisAddr)
		return n, nil
	default:
		return nil, fmt.Errorf("unsupported notifier type: %s", config.Notifier)
	}
}

// CreateSink builds the configured export destination.
func (f *DefaultFactory) CreateSink(ctx context.Context, config Config) (sink.Sink, error) {
	switch config.Destination {
	case FileDestination:
		d, err := sink.NewDir(config.ExportDir)
		if err != nil {
			return nil, err
		}
		f.logger.Info("Exports go to directory", "dir", config.ExportDir)
		return d, nil
	case S3Destination:
		s, err := s3.New(ctx, s3.Config{
			Endpoint:     config.S3Endpoint,
			Region:       config.S3Region,
			Bucket:       config.S3Bucket,
			Prefix:       config.S3Prefix,
			AccessKey:    config.S3AccessKey,
			SecretKey:    config.S3SecretKey,
			UseSSL:       config.S3UseSSL,
			UsePathStyle: config.S3UsePathStyle,
		}, s3.WithLogger(f.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 sink: %w", err)
		}
		f.logger.Info("Exports go to S3", "bucket", config.S3Bucket)
		return s, nil
	case SheetsDestination:
		s, err := google.Dial(ctx, config.GoogleSpreadsheetID, google.WithLogger(f.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets sink: %w", err)
		}
		f.logger.Info("Exports go to Google Sheets")
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported export destination: %s", config.Destination)
	}
}
