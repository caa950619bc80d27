package tagreader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"BucketFM/model"
)

// maxTagDownload 单个文件最多下载的字节数
// MP4 的 moov 可能在文件尾部，所以不能只读文件头
const maxTagDownload = 64 << 20

// ErrTooLarge 响应体超过下载上限
var ErrTooLarge = errors.New("response body too large")

// HTTPReader 通过 HTTP 下载曲库外的文件并解析标签
type HTTPReader struct {
	client *http.Client
	limit  int64
}

// NewHTTPReader 创建 HTTP 读取器，client 为空时使用默认客户端
func NewHTTPReader(client *http.Client) *HTTPReader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPReader{client: client, limit: maxTagDownload}
}

// ReadTags implements Reader.
func (r *HTTPReader) ReadTags(ctx context.Context, locator string) (*model.RawTags, error) {
	if !isHTTPURL(locator) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLocator, locator)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", locator, resp.StatusCode)
	}

	// tag.ReadFrom 需要 io.ReadSeeker；多读一个字节用来判断是否超限
	data, err := io.ReadAll(io.LimitReader(resp.Body, r.limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > r.limit {
		return nil, fmt.Errorf("fetch %s: %w (limit %d bytes)", locator, ErrTooLarge, r.limit)
	}
	return readFrom(bytes.NewReader(data))
}
