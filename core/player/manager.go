// Package player 管理唯一的音频输出资源，负责播放控制和下一首预加载
package player

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"BucketFM/logger"
)

// DefaultPreloadThreshold 距离结束多少秒开始预加载下一首
const DefaultPreloadThreshold = 20 * time.Second

var (
	// ErrDestroyed 播放管理器已销毁
	ErrDestroyed = errors.New("player destroyed")
	// ErrNoSource 没有设置音源
	ErrNoSource = errors.New("no source set")
)

// State 播放状态: idle → loading → playing ⇄ paused → idle
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}

// EventType 对外发布的事件
type EventType string

const (
	EventProgress      EventType = "progress"
	EventEnded         EventType = "ended"
	EventMetadataReady EventType = "metadata"
	EventError         EventType = "error"
)

// Event 播放事件
type Event struct {
	Type        EventType
	Locator     string
	CurrentTime float64
	Duration    float64
	Err         error
}

// Status 播放状态快照，时长未知时 Duration 为 0 且 DurationKnown 为 false
type Status struct {
	State         string  `json:"state"`
	Current       string  `json:"current,omitempty"`
	Next          string  `json:"next,omitempty"`
	IsPlaying     bool    `json:"isPlaying"`
	CurrentTime   float64 `json:"currentTime"`
	Duration      float64 `json:"duration"`
	DurationKnown bool    `json:"durationKnown"`
}

// Option 配置 Manager
type Option func(*Manager)

// WithPreloader 设置预加载器
func WithPreloader(p Preloader) Option {
	return func(m *Manager) { m.preloader = p }
}

// WithPreloadThreshold 设置预加载阈值，非正数时忽略
func WithPreloadThreshold(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.threshold = d.Seconds()
		}
	}
}

// Manager 播放管理器，持有唯一的音频输出资源直到 Destroy
type Manager struct {
	mu sync.Mutex

	output      Output
	unsubscribe func()
	preloader   Preloader
	threshold   float64

	state     State
	current   string
	next      string
	preloaded string // 已经预加载过的下一首
	destroyed bool

	listeners  map[int]func(Event)
	listenerID int
}

// NewManager 创建播放管理器
func NewManager(output Output, opts ...Option) *Manager {
	m := &Manager{
		output:    output,
		threshold: DefaultPreloadThreshold.Seconds(),
		listeners: make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.unsubscribe = output.Subscribe(m.handleOutput)
	return m
}

// SetTrack 设置当前曲目，空字符串清空音源并暂停
func (m *Manager) SetTrack(locator string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return ErrDestroyed
	}

	if locator == "" {
		m.output.Pause()
		err := m.output.SetSource("")
		m.current = ""
		m.state = StateIdle
		return err
	}

	if err := m.output.SetSource(locator); err != nil {
		m.current = ""
		m.state = StateIdle
		return fmt.Errorf("set source: %w", err)
	}
	m.current = locator
	m.state = StateLoading
	if m.next == locator {
		m.next = ""
	}
	return nil
}

// SetNextTrack 记录预加载目标，不会立即加载
func (m *Manager) SetNextTrack(locator string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return
	}
	if m.next != locator {
		m.preloaded = ""
	}
	m.next = locator
}

// Play 开始播放，失败原样返回，不会自动重试
func (m *Manager) Play(ctx context.Context) error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return ErrDestroyed
	}
	if m.current == "" {
		m.mu.Unlock()
		return ErrNoSource
	}
	source := m.current
	m.mu.Unlock()

	// 输出资源的事件回调会获取 mu，这里不能持锁
	err := m.output.Play(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed || m.current != source {
		// 播放期间音源被替换，结果作废
		return err
	}
	if err != nil {
		m.state = StatePaused
		return fmt.Errorf("play %s: %w", source, err)
	}
	m.state = StatePlaying
	return nil
}

// Pause 暂停，可重复调用
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return
	}
	m.output.Pause()
	if m.state == StatePlaying || m.state == StateLoading {
		m.state = StatePaused
	}
}

// Seek 跳转到指定秒数
func (m *Manager) Seek(position float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return ErrDestroyed
	}
	if m.current == "" {
		return ErrNoSource
	}
	if math.IsNaN(position) || position < 0 {
		position = 0
	}
	if d := m.output.Duration(); IsValidDuration(d) && position > d {
		position = d
	}
	return m.output.Seek(position)
}

// CurrentTime 当前播放位置（秒）
func (m *Manager) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return 0
	}
	return m.output.CurrentTime()
}

// Duration 当前曲目时长（秒），元数据加载前为 NaN
func (m *Manager) Duration() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return math.NaN()
	}
	return m.output.Duration()
}

// Current 当前曲目定位符
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Next 下一首定位符
func (m *Manager) Next() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next
}

// State 当前状态
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status 返回状态快照
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		State:     m.state.String(),
		Current:   m.current,
		Next:      m.next,
		IsPlaying: m.state == StatePlaying,
	}
	if m.destroyed {
		return st
	}
	st.CurrentTime = m.output.CurrentTime()
	if d := m.output.Duration(); IsValidDuration(d) {
		st.Duration = d
		st.DurationKnown = true
	}
	return st
}

// Subscribe 订阅播放事件，返回取消订阅函数
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return func() {}
	}
	m.listenerID++
	id := m.listenerID
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Destroy 解除输出资源监听，暂停并清空音源，可重复调用
func (m *Manager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return
	}
	m.destroyed = true

	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.output.Pause()
	if err := m.output.SetSource(""); err != nil {
		logger.Debug("清空音源失败", logger.ErrorField(err))
	}
	if err := m.output.Close(); err != nil {
		logger.Debug("关闭音频输出失败", logger.ErrorField(err))
	}

	m.current = ""
	m.next = ""
	m.preloaded = ""
	m.state = StateIdle
	clear(m.listeners)
}

// handleOutput 处理输出资源事件，监听器和预加载在锁外调用
func (m *Manager) handleOutput(ev OutputEvent) {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}

	out := Event{
		Locator:     m.current,
		CurrentTime: m.output.CurrentTime(),
		Duration:    m.output.Duration(),
		Err:         ev.Err,
	}
	var preload string

	switch ev.Type {
	case OutputTimeUpdate:
		out.Type = EventProgress
		if m.shouldPreload(out.CurrentTime, out.Duration) {
			preload = m.next
			m.preloaded = m.next
		}
	case OutputLoadedMetadata:
		out.Type = EventMetadataReady
		if m.state == StateLoading {
			m.state = StatePaused
		}
	case OutputEnded:
		out.Type = EventEnded
		m.state = StateIdle
	case OutputError:
		out.Type = EventError
		if m.state != StateIdle {
			m.state = StatePaused
		}
	default:
		m.mu.Unlock()
		return
	}

	listeners := make([]func(Event), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	preloader := m.preloader
	m.mu.Unlock()

	if preload != "" && preloader != nil {
		logger.Debug("预加载下一首",
			logger.String("next", preload),
			logger.Float64("currentTime", out.CurrentTime),
			logger.Float64("duration", out.Duration))
		preloader.Preload(preload)
	}
	for _, fn := range listeners {
		fn(out)
	}
}

// shouldPreload 有下一首、时长有效且进入最后 threshold 秒时返回 true
func (m *Manager) shouldPreload(currentTime, duration float64) bool {
	if m.next == "" || m.next == m.preloaded || m.preloader == nil {
		return false
	}
	if !IsValidDuration(duration) {
		return false
	}
	return currentTime > duration-m.threshold
}

// IsValidDuration 判断时长是否为有限正数
func IsValidDuration(d float64) bool {
	return !math.IsNaN(d) && !math.IsInf(d, 0) && d > 0
}
