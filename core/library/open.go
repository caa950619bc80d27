package library

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"BucketFM/core/player"
)

// maxRemoteSize 远程音频整体读入内存的上限
const maxRemoteSize = 256 << 20

// ObjectOpener 曲库对象存储
type ObjectOpener interface {
	KeyFor(locator string) (string, bool)
	OpenObject(ctx context.Context, key string) (io.ReadSeekCloser, error)
}

// NewOpener 返回播放器使用的 Opener
// 曲库内的定位符走对象存储，file:// 和绝对路径读本地文件，其它 http(s) 地址直接下载
// objects 可以为 nil
func NewOpener(objects ObjectOpener, client *http.Client) player.Opener {
	if client == nil {
		client = http.DefaultClient
	}

	return func(ctx context.Context, locator string) (io.ReadCloser, error) {
		if path, ok := localPath(locator); ok {
			return os.Open(path)
		}
		if objects != nil {
			if key, ok := objects.KeyFor(locator); ok {
				return objects.OpenObject(ctx, key)
			}
		}
		if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
			return download(ctx, client, locator, maxRemoteSize)
		}
		return nil, fmt.Errorf("无法打开定位符: %s", locator)
	}
}

func localPath(locator string) (string, bool) {
	if strings.HasPrefix(locator, "file://") {
		u, err := url.Parse(locator)
		if err != nil || u.Path == "" {
			return "", false
		}
		return u.Path, true
	}
	if strings.HasPrefix(locator, "/") {
		return locator, true
	}
	return "", false
}

// ErrTooLarge 远程音频超过内存上限
var ErrTooLarge = errors.New("remote audio too large")

type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

// download 整体下载，解码器需要 Seek
func download(ctx context.Context, client *http.Client, locator string, limit int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("下载 %s 失败: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("下载 %s 失败: %s", locator, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("读取 %s 失败: %w", locator, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("下载 %s 失败: %w (上限 %d 字节)", locator, ErrTooLarge, limit)
	}
	return memFile{bytes.NewReader(data)}, nil
}
