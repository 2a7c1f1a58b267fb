// Package archive uploads a tenant's full snapshot to S3-compatible storage
// before destructive operations so purged data remains recoverable out of
// band.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quillbooks/quillbooks/internal/models"
)

// Config holds S3 connection settings. An empty Endpoint means AWS S3;
// a custom endpoint (MinIO, Wasabi) switches to path-style addressing.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string

	// AccessKey and SecretKey override the default credential chain.
	// Typically set for self-hosted endpoints.
	AccessKey string
	SecretKey string
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("archive: bucket is required")
	}
	return nil
}

// Archiver writes pre-purge snapshot archives.
type Archiver struct {
	cfg      Config
	client   *s3.Client
	uploader *manager.Uploader
	logger   zerolog.Logger
}

// New builds an archiver using the default AWS credential chain.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Archiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	clientOpts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(awsCfg, clientOpts...)

	return &Archiver{
		cfg:      cfg,
		client:   client,
		uploader: manager.NewUploader(client),
		logger:   logger.With().Str("component", "archive").Logger(),
	}, nil
}

// ArchiveSnapshot uploads one tenant snapshot and returns its object key.
// Keys are time-ordered per tenant so listings read chronologically.
func (a *Archiver) ArchiveSnapshot(ctx context.Context, snap *models.Snapshot) (string, error) {
	data, err := snap.Encode()
	if err != nil {
		return "", fmt.Errorf("archive: %w", err)
	}

	key := fmt.Sprintf("pre-purge/%s/%s.json", snap.TenantID, time.Now().UTC().Format("20060102T150405Z"))
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("archive: upload snapshot: %w", err)
	}

	a.logger.Info().
		Str("tenant_id", snap.TenantID.String()).
		Str("key", key).
		Int("bytes", len(data)).
		Msg("pre-purge snapshot archived")
	return key, nil
}

// ListArchives returns the object keys of a tenant's archived snapshots.
func (a *Archiver) ListArchives(ctx context.Context, tenantID uuid.UUID) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.cfg.Bucket),
		Prefix: aws.String(fmt.Sprintf("pre-purge/%s/", tenantID)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("archive: list objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}
