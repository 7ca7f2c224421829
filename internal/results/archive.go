package results

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
)

type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	bucket          string
	accessKey       string
	secretAccessKey string
	prefix          string
	useSSL          bool
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

func WithPrefix(prefix string) MinioOpts {
	return func(c *minioConfig) {
		c.prefix = prefix
	}
}

// MinioArchiver writes results as JSON objects named <prefix>/<project>/<type>/<job>.json.
type MinioArchiver struct {
	cfg    *minioConfig
	client *minio.Client
}

var _ Archiver = (*MinioArchiver)(nil)

func NewMinioArchiver(opts ...MinioOpts) (*MinioArchiver, error) {
	cfg := &minioConfig{prefix: "results"}
	for _, o := range opts {
		o(cfg)
	}

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinioArchiver{cfg: cfg, client: client}, nil
}

func (a *MinioArchiver) Archive(ctx context.Context, entry analysis.ResultEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = a.client.PutObject(ctx, a.cfg.bucket, ObjectName(a.cfg.prefix, entry), bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to archive result of job %s: %w", entry.JobID, err)
	}
	return nil
}

func ObjectName(prefix string, entry analysis.ResultEntry) string {
	return path.Join(prefix, entry.ProjectID, string(entry.Type), entry.JobID.String()+".json")
}
