package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	appconfig "vnjp-connect/internal/config"
	"vnjp-connect/internal/metrics"
	"vnjp-connect/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Transcript is the archived record of a completed exchange
type Transcript struct {
	Intent      *models.Intent       `json:"intent"`
	Messages    []*models.Message    `json:"messages"`
	Evaluations []*models.Evaluation `json:"evaluations"`
	ArchivedAt  time.Time            `json:"archived_at"`
}

// Archiver stores the transcript of a completed exchange
type Archiver interface {
	Archive(ctx context.Context, t *Transcript) error
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes transcripts as JSON objects keyed by intent
type S3Archiver struct {
	client objectPutter
	bucket string
}

// NewS3Archiver creates an archiver from the AWS configuration. Static
// credentials and a custom endpoint are optional.
func NewS3Archiver(ctx context.Context, cfg appconfig.AWSConfig) (*S3Archiver, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archiver{client: client, bucket: cfg.S3Bucket}, nil
}

func transcriptKey(intentID string) string {
	return fmt.Sprintf("transcripts/%s.json", intentID)
}

// Archive uploads the transcript
func (a *S3Archiver) Archive(ctx context.Context, t *Transcript) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	key := transcriptKey(t.Intent.ID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		metrics.TranscriptArchives.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to upload transcript: %w", err)
	}

	metrics.TranscriptArchives.WithLabelValues("stored").Inc()
	log.Info().
		Str("intent_id", t.Intent.ID).
		Str("key", key).
		Int("messages", len(t.Messages)).
		Msg("Transcript archived")
	return nil
}
