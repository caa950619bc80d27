package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"BucketFM/config"
	"BucketFM/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotInitialized MinIO 客户端未初始化
var ErrNotInitialized = errors.New("minio client not initialized")

// ObjectInfo 文件信息
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
	ETag         string
}

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// Client 封装了 MinIO 客户端，并负责定位符与对象键之间的转换
type Client struct {
	client     *minio.Client
	bucketName string
	baseURL    string
}

// NewClient 根据配置创建 MinIO 客户端
func NewClient(cfg *config.Config) (*Client, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	return &Client{
		client:     client,
		bucketName: cfg.MinioBucket,
		baseURL:    strings.TrimRight(cfg.LibraryBaseURL, "/"),
	}, nil
}

// NewLocatorMapper 只做定位符转换，不连接 MinIO
func NewLocatorMapper(baseURL string) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/")}
}

// Bucket 返回存储桶名称
func (c *Client) Bucket() string {
	return c.bucketName
}

// BaseURL 返回曲库定位符前缀
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping 检查存储桶是否存在
func (c *Client) Ping(ctx context.Context) error {
	if c.client == nil {
		return ErrNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := c.client.BucketExists(ctx, c.bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		return fmt.Errorf("存储桶 %s 不存在", c.bucketName)
	}

	logger.Info("MinIO 连接成功",
		logger.String("endpoint", c.client.EndpointURL().Host),
		logger.String("bucket", c.bucketName))
	return nil
}

// ListObjects 列出指定前缀下的所有对象
func (c *Client) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, *BucketStats, error) {
	if c.client == nil {
		return nil, nil, ErrNotInitialized
	}

	stats := &BucketStats{}
	var objects []ObjectInfo

	objectCh := c.client.ListObjects(ctx, c.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, nil, fmt.Errorf("列出对象时出错: %w", object.Err)
		}

		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}

		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  object.ContentType,
			ETag:         object.ETag,
		})
	}

	return objects, stats, nil
}

// ListKeys 返回前缀下所有对象键，分页由 minio-go 处理
func (c *Client) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	objects, _, err := c.ListObjects(ctx, prefix)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// OpenObject 打开一个对象用于随机读取
func (c *Client) OpenObject(ctx context.Context, key string) (io.ReadSeekCloser, error) {
	if c.client == nil {
		return nil, ErrNotInitialized
	}

	object, err := c.client.GetObject(ctx, c.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s 失败: %w", key, err)
	}
	// GetObject 是惰性的，Stat 才会暴露 NoSuchKey 之类的错误
	if _, err := object.Stat(); err != nil {
		object.Close()
		return nil, fmt.Errorf("获取对象 %s 失败: %w", key, err)
	}
	return object, nil
}

// OpenLocator 打开定位符对应的对象
func (c *Client) OpenLocator(ctx context.Context, locator string) (io.ReadCloser, error) {
	key, ok := c.KeyFor(locator)
	if !ok {
		return nil, fmt.Errorf("定位符不属于曲库: %s", locator)
	}
	return c.OpenObject(ctx, key)
}

// KeyFor 把定位符转换为对象键
// 以 baseURL 开头的定位符和不带 scheme 的相对键都属于曲库
func (c *Client) KeyFor(locator string) (string, bool) {
	path := locator
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}

	switch {
	case c.baseURL != "" && strings.HasPrefix(path, c.baseURL+"/"):
		path = strings.TrimPrefix(path, c.baseURL+"/")
	case strings.Contains(path, "://") || strings.HasPrefix(path, "/"):
		return "", false
	}

	segments := strings.Split(path, "/")
	for i, s := range segments {
		if decoded, err := url.PathUnescape(s); err == nil {
			segments[i] = decoded
		}
	}
	key := strings.Join(segments, "/")
	return key, key != ""
}

// LocatorFor 把对象键转换为定位符
func (c *Client) LocatorFor(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	escaped := strings.Join(segments, "/")
	if c.baseURL == "" {
		return escaped
	}
	return c.baseURL + "/" + escaped
}
