package player

import (
	"context"
	"sync"
	"time"

	"BucketFM/logger"
)

// PreloadConfig 预加载配置
type PreloadConfig struct {
	// 单次预加载超时
	Timeout time.Duration
	// 预热时解码的音频长度
	WarmDuration time.Duration
	// 预热记录保留时间，过期后允许再次预热
	TTL time.Duration
}

// DefaultPreloadConfig 默认预加载配置
var DefaultPreloadConfig = PreloadConfig{
	Timeout:      30 * time.Second,
	WarmDuration: 5 * time.Second,
	TTL:          30 * time.Minute,
}

// BeepPreloader 打开下一首并解码开头一段后丢弃，用来预热对象存储和解码链路
type BeepPreloader struct {
	open Opener
	cfg  PreloadConfig

	mu         sync.RWMutex
	warmed     map[string]time.Time // 已预热的定位符
	inProgress map[string]bool      // 正在预热的定位符

	wg sync.WaitGroup
}

// NewBeepPreloader 创建预加载器
func NewBeepPreloader(open Opener, cfg PreloadConfig) *BeepPreloader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPreloadConfig.Timeout
	}
	if cfg.WarmDuration <= 0 {
		cfg.WarmDuration = DefaultPreloadConfig.WarmDuration
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultPreloadConfig.TTL
	}
	return &BeepPreloader{
		open:       open,
		cfg:        cfg,
		warmed:     make(map[string]time.Time),
		inProgress: make(map[string]bool),
	}
}

// Preload implements Preloader. 异步执行，不阻塞调用方
func (p *BeepPreloader) Preload(locator string) {
	p.mu.Lock()
	if p.inProgress[locator] {
		p.mu.Unlock()
		return
	}
	if at, ok := p.warmed[locator]; ok && time.Since(at) < p.cfg.TTL {
		p.mu.Unlock()
		return
	}
	p.inProgress[locator] = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.warm(locator)
	}()
}

// Warmed 判断定位符是否已预热
func (p *BeepPreloader) Warmed(locator string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.warmed[locator]
	return ok
}

// Wait 等待所有进行中的预加载结束
func (p *BeepPreloader) Wait() {
	p.wg.Wait()
}

func (p *BeepPreloader) warm(locator string) {
	start := time.Now()
	ok := false
	defer func() {
		p.mu.Lock()
		delete(p.inProgress, locator)
		if ok {
			p.warmed[locator] = time.Now()
		}
		p.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()

	rc, err := p.open(ctx, locator)
	if err != nil {
		logger.Warn("预加载打开失败", logger.String("locator", locator), logger.ErrorField(err))
		return
	}
	defer rc.Close()

	stream, format, err := Decode(locator, rc)
	if err != nil {
		logger.Warn("预加载解码失败", logger.String("locator", locator), logger.ErrorField(err))
		return
	}
	defer stream.Close()

	remaining := format.SampleRate.N(p.cfg.WarmDuration)
	buf := make([][2]float64, 512)
	for remaining > 0 {
		n, more := stream.Stream(buf[:min(len(buf), remaining)])
		remaining -= n
		if !more || n == 0 {
			break
		}
	}
	if err := stream.Err(); err != nil {
		logger.Warn("预加载读取失败", logger.String("locator", locator), logger.ErrorField(err))
		return
	}

	ok = true
	logger.Debug("预加载完成",
		logger.String("locator", locator),
		logger.Duration("elapsed", time.Since(start)))
}
