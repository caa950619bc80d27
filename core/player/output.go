package player

import (
	"context"
	"io"
)

// OutputEventType 音频输出资源上报的事件
type OutputEventType string

const (
	OutputTimeUpdate     OutputEventType = "timeupdate"
	OutputEnded          OutputEventType = "ended"
	OutputLoadedMetadata OutputEventType = "loadedmetadata"
	OutputError          OutputEventType = "error"
)

// OutputEvent 音频输出事件
type OutputEvent struct {
	Type OutputEventType
	Err  error
}

// Output 单一音频输出资源
//
// 时间单位为秒。Duration 在元数据加载前返回 NaN。
// 事件可能在任意 goroutine 上回调，回调中不能再调用 Output 的阻塞方法。
type Output interface {
	// SetSource 替换音源，空字符串表示清空；旧音源的加载被直接放弃
	SetSource(locator string) error
	Source() string
	Play(ctx context.Context) error
	Pause()
	Seek(position float64) error
	CurrentTime() float64
	Duration() float64
	Subscribe(fn func(OutputEvent)) (unsubscribe func())
	Close() error
}

// Preloader 预热下一首曲目，不能阻塞调用方
type Preloader interface {
	Preload(locator string)
}

// PreloaderFunc 函数适配 Preloader
type PreloaderFunc func(locator string)

// Preload implements Preloader.
func (f PreloaderFunc) Preload(locator string) { f(locator) }

// Opener 打开定位符对应的音频流
// 返回值实现 io.Seeker 时支持 Seek 和时长计算
type Opener func(ctx context.Context, locator string) (io.ReadCloser, error)
