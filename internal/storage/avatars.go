// Package storage keeps profile pictures in an S3-compatible bucket. Clients
// upload and download directly with presigned URLs.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/ezvendo/portal/internal/cache"
	"github.com/ezvendo/portal/internal/config"
)

// AvatarStore presigns avatar uploads and downloads. Download URLs are reused
// for half their lifetime.
type AvatarStore struct {
	presign   *s3.PresignClient
	bucket    string
	expiry    time.Duration
	downloads *cache.Cache[string]
}

func NewAvatarStore(ctx context.Context, cfg *config.Config) (*AvatarStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		// MinIO serves buckets by path, not by subdomain
		o.UsePathStyle = true
	})

	expiry := cfg.AvatarURLExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &AvatarStore{
		presign:   s3.NewPresignClient(client),
		bucket:    cfg.S3Bucket,
		expiry:    expiry,
		downloads: cache.New[string](expiry/2, expiry),
	}, nil
}

// NewKey returns a fresh object key for a card's avatar.
func NewKey(rfid string) string {
	return fmt.Sprintf("avatars/%s/%s.jpg", rfid, uuid.NewString())
}

// OwnsKey reports whether key belongs to the card.
func OwnsKey(rfid, key string) bool {
	return strings.HasPrefix(key, "avatars/"+rfid+"/")
}

func (s *AvatarStore) PresignUpload(ctx context.Context, key string) (string, time.Time, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String("image/jpeg"),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign upload: %w", err)
	}
	return req.URL, time.Now().Add(s.expiry), nil
}

func (s *AvatarStore) PresignDownload(ctx context.Context, key string) (string, error) {
	if u, ok := s.downloads.Get(key); ok {
		return u, nil
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	s.downloads.Set(key, req.URL)
	return req.URL, nil
}

func (s *AvatarStore) Close() {
	s.downloads.Stop()
}
