// Package tagreader 提供不同运行环境下的标签读取实现
//
//   - object: 曲库内的定位符，从 MinIO 读取对象并用 dhowden/tag 解析
//   - http:   曲库外的 http(s) 定位符，下载后解析
//   - file:   本地文件，使用 audiometa 解析
//   - auto:   按定位符逐个路由到以上实现
//
// 选择只发生在 Select 这一个组合点。
package tagreader

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"BucketFM/model"
)

// 读取模式
const (
	ModeAuto   = "auto"
	ModeObject = "object"
	ModeHTTP   = "http"
	ModeFile   = "file"
	ModeNone   = "none"
)

var (
	// ErrDisabled 标签读取被配置关闭
	ErrDisabled = errors.New("tag reading disabled")
	// ErrUnsupportedLocator 没有读取器能处理该定位符
	ErrUnsupportedLocator = errors.New("unsupported locator")
)

// Reader 读取定位符对应文件的内嵌标签，没有标签时返回 nil, nil
type Reader interface {
	ReadTags(ctx context.Context, locator string) (*model.RawTags, error)
}

// ObjectSource 曲库对象存储，由 storage.Client 实现
type ObjectSource interface {
	KeyFor(locator string) (string, bool)
	OpenObject(ctx context.Context, key string) (io.ReadSeekCloser, error)
}

// Deps 构建读取器需要的外部依赖
type Deps struct {
	Objects    ObjectSource
	HTTPClient *http.Client
	LocalRoot  string // 为空时 file 模式接受任意本地路径
}

// Select 根据模式构建读取器
func Select(mode string, deps Deps) (Reader, error) {
	switch strings.ToLower(mode) {
	case ModeNone:
		return nil, ErrDisabled
	case ModeObject:
		if deps.Objects == nil {
			return nil, errors.New("object mode requires an object source")
		}
		return NewObjectReader(deps.Objects), nil
	case ModeHTTP:
		return NewHTTPReader(deps.HTTPClient), nil
	case ModeFile:
		return NewFileReader(deps.LocalRoot), nil
	case ModeAuto, "":
		return NewRouter(deps), nil
	default:
		return nil, fmt.Errorf("unknown tag reader mode %q", mode)
	}
}

// Router 按定位符类型分发到对应的读取器
type Router struct {
	objects ObjectSource
	object  Reader
	http    Reader
	file    *FileReader
}

// NewRouter 创建自动路由读取器
func NewRouter(deps Deps) *Router {
	r := &Router{
		http: NewHTTPReader(deps.HTTPClient),
		file: NewFileReader(deps.LocalRoot),
	}
	if deps.Objects != nil {
		r.objects = deps.Objects
		r.object = NewObjectReader(deps.Objects)
	}
	return r
}

// ReadTags implements Reader.
func (r *Router) ReadTags(ctx context.Context, locator string) (*model.RawTags, error) {
	if r.file.Accepts(locator) {
		return r.file.ReadTags(ctx, locator)
	}
	if r.objects != nil {
		if _, ok := r.objects.KeyFor(locator); ok {
			return r.object.ReadTags(ctx, locator)
		}
	}
	if isHTTPURL(locator) {
		return r.http.ReadTags(ctx, locator)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedLocator, locator)
}

func isHTTPURL(locator string) bool {
	lower := strings.ToLower(locator)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// DataURI 把内嵌封面编码为 data URI
func DataURI(mimeType string, data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if mimeType == "" || !strings.Contains(mimeType, "/") {
		mimeType = http.DetectContentType(data)
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
