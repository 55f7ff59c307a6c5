package storage

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"ZenMix/config"
	"ZenMix/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DurationMetaKey is the user-metadata key under which the natural media
// duration (seconds) is stored on uploaded audio objects. The clock audio
// backend reads it back from HEAD responses.
const DurationMetaKey = "Audio-Duration"

// Client wraps a MinIO connection for one bucket.
type Client struct {
	client *minio.Client
	bucket string
	// public base URL for building object URLs handed to players
	publicBase string
}

// New 初始化 MinIO 客户端并确保存储桶存在
func New(cfg *config.Config) (*Client, error) {
	logger.Info("正在连接 MinIO 服务器...",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 检查存储桶是否存在
	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		err = client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{
			Region: cfg.MinioRegion,
		})
		if err != nil {
			return nil, fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("成功创建存储桶", logger.String("bucket", cfg.MinioBucket))
	}

	publicBase := cfg.MinioPublicBase
	if publicBase == "" {
		scheme := "http"
		if cfg.MinioUseSSL {
			scheme = "https"
		}
		publicBase = fmt.Sprintf("%s://%s/%s", scheme, cfg.MinioEndpoint, cfg.MinioBucket)
	}

	logger.Info("MinIO 客户端初始化成功")
	return &Client{client: client, bucket: cfg.MinioBucket, publicBase: publicBase}, nil
}

// Upload stores a blob and returns its public URL. durationSeconds > 0 is
// recorded as object metadata for later duration probing.
func (c *Client) Upload(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string, durationSeconds float64) (string, error) {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if durationSeconds > 0 {
		opts.UserMetadata = map[string]string{
			DurationMetaKey: strconv.FormatFloat(durationSeconds, 'f', 3, 64),
		}
	}

	_, err := c.client.PutObject(ctx, c.bucket, objectPath, r, size, opts)
	if err != nil {
		return "", fmt.Errorf("上传文件失败 %s: %w", objectPath, err)
	}

	logger.Info("文件上传成功",
		logger.String("object", objectPath),
		logger.Int64("size", size))
	return c.PublicURL(objectPath), nil
}

// PublicURL returns the URL under which an object is reachable.
func (c *Client) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/%s", c.publicBase, objectPath)
}

// Remove deletes the given objects. Failures on individual objects are
// collected into a single error.
func (c *Client) Remove(ctx context.Context, objectPaths []string) error {
	var firstErr error
	for _, p := range objectPaths {
		if err := c.client.RemoveObject(ctx, c.bucket, p, minio.RemoveObjectOptions{}); err != nil {
			logger.Error("删除文件失败", logger.String("object", p), logger.ErrorField(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("删除文件失败 %s: %w", p, err)
			}
		}
	}
	return firstErr
}

// GetObject opens an object for reading.
func (c *Client) GetObject(ctx context.Context, objectPath string, opts minio.GetObjectOptions) (*minio.Object, error) {
	return c.client.GetObject(ctx, c.bucket, objectPath, opts)
}

// Stat returns object info, used by the management CLI.
func (c *Client) Stat(ctx context.Context, objectPath string) (minio.ObjectInfo, error) {
	return c.client.StatObject(ctx, c.bucket, objectPath, minio.StatObjectOptions{})
}

// ListObjects streams object info for a prefix, used by the management CLI.
func (c *Client) ListObjects(ctx context.Context, prefix string, recursive bool) <-chan minio.ObjectInfo {
	return c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: recursive,
	})
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}
