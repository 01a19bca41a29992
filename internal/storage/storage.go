// Package storage uploads manual assets straight to the S3-compatible
// bucket (Cloudflare R2) the pipeline serves media from.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/reactorctl/internal/config"
)

// ErrDisabled is returned when storage credentials are not configured.
var ErrDisabled = errors.New("direct storage upload is not configured")

// S3API is the subset of the S3 client the uploader uses. Interface for testing.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader puts files into the bucket and returns their public URLs.
type Uploader struct {
	client    S3API
	bucket    string
	publicURL string
	folder    string
	logger    *slog.Logger
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(u *Uploader) { u.logger = l }
}

// WithFolder overrides the key prefix.
func WithFolder(folder string) Option {
	return func(u *Uploader) { u.folder = strings.Trim(folder, "/") }
}

// New builds an uploader from the storage config, using static credentials
// against the configured endpoint with path-style addressing.
func New(ctx context.Context, cfg config.Storage, opts ...Option) (*Uploader, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String(cfg.Endpoint)
	})
	return NewWithClient(client, cfg, opts...), nil
}

// NewWithClient creates an uploader over a custom S3API implementation.
func NewWithClient(client S3API, cfg config.Storage, opts ...Option) *Uploader {
	u := &Uploader{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		folder:    strings.Trim(cfg.Folder, "/"),
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Key returns the object key for a file name.
func (u *Uploader) Key(name string) string {
	base := filepath.Base(name)
	if u.folder == "" {
		return base
	}
	return path.Join(u.folder, base)
}

// PublicURL returns the public URL of an object key.
func (u *Uploader) PublicURL(key string) string {
	return u.publicURL + "/" + key
}

// Upload puts data under the key derived from name and returns its public URL.
// The content type is sniffed from the data.
func (u *Uploader) Upload(ctx context.Context, name string, data []byte) (string, error) {
	key := u.Key(name)
	ctype := mimetype.Detect(data).String()
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(ctype),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	u.logger.Debug("uploaded", "key", key, "content_type", ctype, "bytes", len(data))
	return u.PublicURL(key), nil
}

// UploadFile reads a local file and uploads it.
func (u *Uploader) UploadFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return u.Upload(ctx, path, data)
}

// FileUploader uploads one local file. Satisfied by *Uploader and by the
// pipeline server upload adapter in the CLI.
type FileUploader interface {
	UploadFile(ctx context.Context, path string) (string, error)
}

// UploadAll uploads files concurrently and returns their URLs in input order.
func UploadAll(ctx context.Context, up FileUploader, paths []string) ([]string, error) {
	urls := make([]string, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for i, p := range paths {
		g.Go(func() error {
			url, err := up.UploadFile(gctx, p)
			if err != nil {
				return err
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}
