package trackmeta

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"BucketFM/logger"
	"BucketFM/model"

	"golang.org/x/sync/singleflight"
)

// TagReader 读取定位符对应音频文件的内嵌标签
// 没有标签时返回 nil, nil
type TagReader interface {
	ReadTags(ctx context.Context, locator string) (*model.RawTags, error)
}

// ReaderFunc 函数适配 TagReader
type ReaderFunc func(ctx context.Context, locator string) (*model.RawTags, error)

// ReadTags implements TagReader.
func (f ReaderFunc) ReadTags(ctx context.Context, locator string) (*model.RawTags, error) {
	return f(ctx, locator)
}

// ReaderResolver 延迟解析标签读取器，每个 Deriver 只调用一次
// 返回错误等同于 "没有可用的读取器"
type ReaderResolver func() (TagReader, error)

// TagStore 进程外的二级标签缓存，未命中时返回 nil, nil
type TagStore interface {
	GetTags(ctx context.Context, key string) (*model.TagFields, error)
	SetTags(ctx context.Context, key string, fields model.TagFields) error
}

// Stats 缓存统计
type Stats struct {
	Entries int   `json:"entries"`
	Reads   int64 `json:"reads"`
	Hits    int64 `json:"hits"`
}

// Deriver 合并标签与键文本推导出的元数据，带进程内缓存和并发读取去重
type Deriver struct {
	resolve    ReaderResolver
	readerOnce sync.Once
	reader     TagReader

	store TagStore

	mu    sync.RWMutex
	cache map[string]model.TagFields
	// epoch 每次 Clear / Forget 加一，读取开始前的 epoch 过期后结果不再写入缓存
	epoch uint64

	inflight singleflight.Group

	reads atomic.Int64
	hits  atomic.Int64
}

// Option 配置 Deriver
type Option func(*Deriver)

// WithReader 直接指定标签读取器
func WithReader(r TagReader) Option {
	return func(d *Deriver) {
		d.resolve = func() (TagReader, error) { return r, nil }
	}
}

// WithReaderResolver 指定延迟解析读取器的函数
func WithReaderResolver(fn ReaderResolver) Option {
	return func(d *Deriver) {
		d.resolve = fn
	}
}

// WithTagStore 指定二级缓存
func WithTagStore(s TagStore) Option {
	return func(d *Deriver) {
		d.store = s
	}
}

// New 创建一个拥有独立缓存的 Deriver
func New(opts ...Option) *Deriver {
	d := &Deriver{
		cache: make(map[string]model.TagFields),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type deriveOptions struct {
	skipTags bool
}

// DeriveOption 单次推导的选项
type DeriveOption func(*deriveOptions)

// SkipTags 不读取标签，直接返回键文本推导结果
func SkipTags() DeriveOption {
	return func(o *deriveOptions) {
		o.skipTags = true
	}
}

// CacheKey 去掉 fragment 后的定位符
func CacheKey(locator string) string {
	key, _, _ := strings.Cut(locator, "#")
	return key
}

// Derive 返回定位符的展示元数据，永远不会返回错误
func (d *Deriver) Derive(ctx context.Context, locator string, opts ...DeriveOption) model.TrackMetadata {
	var o deriveOptions
	for _, opt := range opts {
		opt(&o)
	}

	fallback := Parse(locator).Metadata()
	if o.skipTags {
		return fallback
	}

	reader := d.tagReader()
	if reader == nil {
		return fallback
	}

	key := CacheKey(locator)
	if fields, ok := d.cached(key); ok {
		d.hits.Add(1)
		return Merge(fallback, &fields)
	}

	return Merge(fallback, d.readShared(ctx, reader, key, locator))
}

// readShared 同一个 key 同时只会有一次读取，并发调用者共享结果
func (d *Deriver) readShared(ctx context.Context, reader TagReader, key, locator string) *model.TagFields {
	// 共享的读取不能因为某一个调用者取消而失败
	readCtx := context.WithoutCancel(ctx)

	v, _, _ := d.inflight.Do(key, func() (interface{}, error) {
		fields, ok, epoch := d.cachedAt(key)
		if ok {
			return &fields, nil
		}

		if stored := d.loadFromStore(readCtx, key); stored != nil {
			d.putIfCurrent(key, *stored, epoch)
			return stored, nil
		}

		read := Normalize(d.safeRead(readCtx, reader, locator))
		if read != nil && d.putIfCurrent(key, *read, epoch) {
			d.saveToStore(readCtx, key, *read)
		}
		return read, nil
	})

	fields, _ := v.(*model.TagFields)
	return fields
}

func (d *Deriver) safeRead(ctx context.Context, reader TagReader, locator string) (raw *model.RawTags) {
	d.reads.Add(1)

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("标签读取器 panic，按无标签处理",
				logger.String("locator", locator),
				logger.Any("panic", r))
			raw = nil
		}
	}()

	raw, err := reader.ReadTags(ctx, locator)
	if err != nil {
		logger.Debug("读取标签失败，使用键文本元数据",
			logger.String("locator", locator),
			logger.ErrorField(err))
		return nil
	}
	return raw
}

func (d *Deriver) loadFromStore(ctx context.Context, key string) *model.TagFields {
	if d.store == nil {
		return nil
	}
	fields, err := d.store.GetTags(ctx, key)
	if err != nil {
		logger.Warn("读取二级标签缓存失败", logger.String("key", key), logger.ErrorField(err))
		return nil
	}
	if fields == nil || fields.Empty() {
		return nil
	}
	return fields
}

func (d *Deriver) saveToStore(ctx context.Context, key string, fields model.TagFields) {
	if d.store == nil {
		return
	}
	if err := d.store.SetTags(ctx, key, fields); err != nil {
		logger.Warn("写入二级标签缓存失败", logger.String("key", key), logger.ErrorField(err))
	}
}

func (d *Deriver) tagReader() TagReader {
	d.readerOnce.Do(func() {
		if d.resolve == nil {
			return
		}
		reader, err := d.resolve()
		if err != nil {
			logger.Info("没有可用的标签读取器，只使用键文本元数据", logger.ErrorField(err))
			return
		}
		d.reader = reader
	})
	return d.reader
}

func (d *Deriver) cached(key string) (model.TagFields, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fields, ok := d.cache[key]
	return fields, ok
}

// cachedAt 同时返回当前 epoch，供之后的 putIfCurrent 比较
func (d *Deriver) cachedAt(key string) (model.TagFields, bool, uint64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fields, ok := d.cache[key]
	return fields, ok, d.epoch
}

// putIfCurrent 读取期间发生过 Clear / Forget 时丢弃结果
func (d *Deriver) putIfCurrent(key string, fields model.TagFields, epoch uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.epoch != epoch {
		return false
	}
	d.cache[key] = fields
	return true
}

// Forget 删除单个定位符的缓存
func (d *Deriver) Forget(locator string) {
	key := CacheKey(locator)
	d.mu.Lock()
	delete(d.cache, key)
	d.epoch++
	d.mu.Unlock()
	d.inflight.Forget(key)
}

// Clear 清空全部缓存，进行中的读取结果不会再写回
func (d *Deriver) Clear() {
	d.mu.Lock()
	d.cache = make(map[string]model.TagFields)
	d.epoch++
	d.mu.Unlock()
}

// Stats 返回缓存统计
func (d *Deriver) Stats() Stats {
	d.mu.RLock()
	entries := len(d.cache)
	d.mu.RUnlock()
	return Stats{
		Entries: entries,
		Reads:   d.reads.Load(),
		Hits:    d.hits.Load(),
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("entries=%d reads=%d hits=%d", s.Entries, s.Reads, s.Hits)
}
