// Package archive stores each cycle's raw bookmaker feed in S3-compatible
// object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cypherlabdev/odds-arbitrage-service/internal/models"
)

// objectPutter is the subset of *s3.Client the archiver needs
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds archive settings
type Config struct {
	Bucket         string
	Prefix         string
	Region         string
	Endpoint       string // MinIO, R2 etc. Empty for AWS.
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// S3Archiver writes raw feeds as JSON objects
type S3Archiver struct {
	client objectPutter
	bucket string
	prefix string
	logger zerolog.Logger
}

// archivedFeed is the stored document
type archivedFeed struct {
	CycleID   uuid.UUID         `json:"cycle_id"`
	FetchedAt time.Time         `json:"fetched_at"`
	Events    []models.RawEvent `json:"events"`
}

// NewS3Archiver builds an archiver backed by the AWS SDK. Static
// credentials are used when an access key is configured, otherwise the
// default credential chain applies.
func NewS3Archiver(ctx context.Context, cfg Config, logger zerolog.Logger) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := normaliseEndpoint(cfg.Endpoint)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return newArchiver(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Prefix, logger), nil
}

func newArchiver(client objectPutter, bucket, prefix string, logger zerolog.Logger) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With().Str("component", "s3_archiver").Logger(),
	}
}

// Key returns {prefix}/{YYYY-MM-DD}/{cycle_id}.json
func (a *S3Archiver) Key(cycleID uuid.UUID, fetchedAt time.Time) string {
	return path.Join(a.prefix, fetchedAt.UTC().Format("2006-01-02"), cycleID.String()+".json")
}

// ArchiveFeed uploads one cycle's raw feed
func (a *S3Archiver) ArchiveFeed(ctx context.Context, cycleID uuid.UUID, fetchedAt time.Time, events []models.RawEvent) error {
	data, err := json.Marshal(archivedFeed{CycleID: cycleID, FetchedAt: fetchedAt, Events: events})
	if err != nil {
		return fmt.Errorf("failed to marshal feed: %w", err)
	}

	key := a.Key(cycleID, fetchedAt)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}

	a.logger.Debug().
		Str("bucket", a.bucket).
		Str("key", key).
		Int("bytes", len(data)).
		Msg("archived raw feed")

	return nil
}

func normaliseEndpoint(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "https://" + endpoint
}
