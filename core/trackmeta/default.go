package trackmeta

import (
	"context"
	"sync"

	"BucketFM/model"
)

var (
	defaultMu      sync.RWMutex
	defaultDeriver = New()
)

// Default 返回进程级默认 Deriver
// 启动前它没有标签读取器，只返回键文本推导结果
func Default() *Deriver {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultDeriver
}

// SetDefault 在启动时替换默认 Deriver
func SetDefault(d *Deriver) {
	if d == nil {
		return
	}
	defaultMu.Lock()
	defaultDeriver = d
	defaultMu.Unlock()
}

// Derive 使用默认 Deriver 推导元数据
func Derive(ctx context.Context, locator string, opts ...DeriveOption) model.TrackMetadata {
	return Default().Derive(ctx, locator, opts...)
}
