// Package s3 delivers export files to an S3-compatible bucket (AWS S3,
// MinIO, RustFS and the like).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	applog "elsa/internal/log"
	"elsa/internal/sink"
)

// Config describes the bucket and how to reach it.
type Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	Prefix       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
}

func (c Config) Validate() error {
	var errs []error
	if c.Bucket == "" {
		errs = append(errs, errors.New("s3 bucket is required"))
	}
	if c.AccessKey == "" {
		errs = append(errs, errors.New("s3 access key is required"))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("s3 secret key is required"))
	}
	return errors.Join(errs...)
}

// Sink uploads each file as one object under Prefix.
type Sink struct {
	client *s3.Client
	bucket string
	prefix string
	logger *applog.Logger
}

var _ sink.Sink = (*Sink)(nil)

type Option func(*Sink)

func WithLogger(l *applog.Logger) Option {
	return func(s *Sink) { s.logger = l.WithComponent(applog.ComponentSink) }
}

func New(ctx context.Context, cfg Config, opts ...Option) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint, err := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return NewWithClient(client, cfg.Bucket, cfg.Prefix, opts...), nil
}

// NewWithClient uses an existing client.
func NewWithClient(client *s3.Client, bucket, prefix string, opts ...Option) *Sink {
	s := &Sink{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: applog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// normalizeEndpoint adds a scheme when missing. An empty endpoint means AWS.
func normalizeEndpoint(endpoint string, useSSL bool) (string, error) {
	if endpoint == "" {
		return "", nil
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if useSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	if _, err := url.Parse(endpoint); err != nil {
		return "", fmt.Errorf("invalid s3 endpoint: %w", err)
	}
	return endpoint, nil
}

// Key is the object key for a file name.
func (s *Sink) Key(name string) string {
	name = path.Base("/" + name)
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// Open buffers the file; Close uploads it.
func (s *Sink) Open(ctx context.Context, f sink.File) (io.WriteCloser, error) {
	return &upload{ctx: ctx, s: s, f: f}, nil
}

type upload struct {
	ctx    context.Context
	s      *Sink
	f      sink.File
	buf    bytes.Buffer
	closed bool
}

func (u *upload) Write(p []byte) (int, error) {
	if u.closed {
		return 0, errors.New("write to closed upload")
	}
	return u.buf.Write(p)
}

func (u *upload) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true

	key := u.s.Key(u.f.Name)
	_, err := u.s.client.PutObject(u.ctx, &s3.PutObjectInput{
		Bucket:             aws.String(u.s.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(u.buf.Bytes()),
		ContentLength:      aws.Int64(int64(u.buf.Len())),
		ContentType:        aws.String(u.f.ContentType),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", u.f.Name)),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	u.s.logger.InfoContext(u.ctx, "Export uploaded", "bucket", u.s.bucket, "key", key, applog.FieldBytes, u.buf.Len())
	return nil
}
