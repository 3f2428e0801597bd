package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/nexusbridge/relayer/pkg/domain"
)

// S3Client is the subset of the AWS SDK S3 client S3Syncer needs,
// narrowed so tests can supply a fake.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Syncer is a Syncer backed by an S3 bucket, under an optional
// key-prefix "folder". Its location string takes the form
// "s3://bucket/region/folder".
type S3Syncer struct {
	client S3Client
	bucket string
	region string
	folder string
	logger *log.Logger
}

// NewS3Syncer builds an S3Syncer using the default AWS credential
// chain (environment, shared config, IMDS).
func NewS3Syncer(ctx context.Context, bucket, region, folder string) (*S3Syncer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: load aws config: %w", err)
	}
	return &S3Syncer{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		region: region,
		folder: folder,
		logger: log.New(log.Writer(), "[CheckpointSyncer:s3] ", log.LstdFlags),
	}, nil
}

// NewS3SyncerWithClient builds an S3Syncer from an already-constructed
// client, for tests and for callers that share one client across
// multiple syncers.
func NewS3SyncerWithClient(client S3Client, bucket, region, folder string) *S3Syncer {
	return &S3Syncer{client: client, bucket: bucket, region: region, folder: folder,
		logger: log.New(log.Writer(), "[CheckpointSyncer:s3] ", log.LstdFlags)}
}

func (s *S3Syncer) key(name string) string {
	if s.folder == "" {
		return name
	}
	return strings.TrimSuffix(s.folder, "/") + "/" + name
}

func (s *S3Syncer) getObject(ctx context.Context, name string) ([]byte, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("checkpoint: s3 get %s: %w", name, err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("checkpoint: s3 read %s: %w", name, err)
	}
	return b, true, nil
}

func (s *S3Syncer) putObject(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("checkpoint: s3 put %s: %w", name, err)
	}
	return nil
}

func (s *S3Syncer) LatestIndex(ctx context.Context) (uint32, bool, error) {
	b, ok, err := s.getObject(ctx, indexFileName)
	if err != nil || !ok {
		return 0, ok, err
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 32)
	if err != nil {
		return 0, false, fmt.Errorf("checkpoint: parse %s: %w", indexFileName, err)
	}
	return uint32(n), true, nil
}

func (s *S3Syncer) FetchCheckpoint(ctx context.Context, index uint32) (domain.SignedCheckpoint, bool, error) {
	b, ok, err := s.getObject(ctx, checkpointFileName(index))
	if err != nil || !ok {
		return domain.SignedCheckpoint{}, ok, err
	}
	signed, err := unmarshalSignedCheckpoint(b)
	if err != nil {
		return domain.SignedCheckpoint{}, false, err
	}
	return signed, true, nil
}

func (s *S3Syncer) WriteCheckpoint(ctx context.Context, signed domain.SignedCheckpoint) error {
	b, err := marshalSignedCheckpoint(signed)
	if err != nil {
		return err
	}
	return s.putObject(ctx, checkpointFileName(signed.Value.Index), b)
}

func (s *S3Syncer) WriteLatestIndex(ctx context.Context, index uint32) error {
	return s.putObject(ctx, indexFileName, []byte(strconv.FormatUint(uint64(index), 10)))
}

func (s *S3Syncer) WriteAnnouncement(ctx context.Context, signed SignedAnnouncement) error {
	b, err := marshalSignedAnnouncement(signed)
	if err != nil {
		return err
	}
	return s.putObject(ctx, announcementFileName, b)
}

func (s *S3Syncer) AnnouncementLocation() string {
	if s.folder == "" {
		return fmt.Sprintf("s3://%s/%s", s.bucket, s.region)
	}
	return fmt.Sprintf("s3://%s/%s/%s", s.bucket, s.region, s.folder)
}
