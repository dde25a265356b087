package artifacts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	bucket          string
	accessKey       string
	secretAccessKey string
	useSSL          bool
}

func newMinioConfig(opts ...MinioOpts) *minioConfig {
	cfg := &minioConfig{bucket: "shorts"}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// MinioStore keeps artifacts as objects in an S3-compatible bucket.
type MinioStore struct {
	cfg    *minioConfig
	client *minio.Client
	logger *slog.Logger
}

// NewMinioStore connects to the endpoint and creates the bucket if needed.
func NewMinioStore(ctx context.Context, logger *slog.Logger, opts ...MinioOpts) (*MinioStore, error) {
	cfg := newMinioConfig(opts...)

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.bucket, err)
		}
		logger.Info("created artifact bucket", "bucket", cfg.bucket)
	}

	return &MinioStore{cfg: cfg, client: client, logger: logger}, nil
}

func (s *MinioStore) Type() string {
	return "minio"
}

func (s *MinioStore) Put(ctx context.Context, jobID, srcPath string) (Artifact, error) {
	key, err := KeyFor(jobID)
	if err != nil {
		return Artifact{}, err
	}

	info, err := s.client.FPutObject(ctx, s.cfg.bucket, key, srcPath, minio.PutObjectOptions{
		ContentType: videoContentType,
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("upload artifact: %w", err)
	}
	_ = os.Remove(srcPath)

	s.logger.Info("artifact uploaded", "job_id", jobID, "bucket", s.cfg.bucket, "size", info.Size)
	return Artifact{Key: key, Size: info.Size, ModTime: info.LastModified, ContentType: videoContentType}, nil
}

func (s *MinioStore) Open(ctx context.Context, jobID string) (io.ReadSeekCloser, Artifact, error) {
	key, err := KeyFor(jobID)
	if err != nil {
		return nil, Artifact{}, err
	}

	object, err := s.client.GetObject(ctx, s.cfg.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, Artifact{}, mapMinioErr(err)
	}
	info, err := object.Stat()
	if err != nil {
		object.Close()
		return nil, Artifact{}, mapMinioErr(err)
	}
	return object, Artifact{Key: key, Size: info.Size, ModTime: info.LastModified, ContentType: info.ContentType}, nil
}

func (s *MinioStore) Delete(ctx context.Context, jobID string) error {
	key, err := KeyFor(jobID)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.cfg.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if mapMinioErr(err) == ErrNotExist {
			return nil
		}
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

func mapMinioErr(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotExist
	}
	return err
}

func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) {
		c.endpoint = endpoint
	}
}

func WithBucket(bucket string) MinioOpts {
	return func(c *minioConfig) {
		c.bucket = bucket
	}
}

func WithAccessKey(accessKey string) MinioOpts {
	return func(c *minioConfig) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) MinioOpts {
	return func(c *minioConfig) {
		c.secretAccessKey = secretKey
	}
}

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) {
		c.useSSL = useSSL
	}
}
