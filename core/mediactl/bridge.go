package mediactl

import (
	"math"
	"slices"
	"sync"

	"BucketFM/logger"
	"BucketFM/model"
)

// Handlers 系统指令对应的播放器操作，为 nil 的项不注册
type Handlers struct {
	Play          func()
	Pause         func()
	Stop          func()
	NextTrack     func()
	PreviousTrack func()
	SeekBackward  func(offset float64)
	SeekForward   func(offset float64)
	SeekTo        func(position float64)
}

func (h Handlers) forAction(action Action) ActionHandler {
	simple := func(fn func()) ActionHandler {
		if fn == nil {
			return nil
		}
		return func(ActionDetails) { fn() }
	}

	switch action {
	case ActionPlay:
		return simple(h.Play)
	case ActionPause:
		return simple(h.Pause)
	case ActionStop:
		return simple(h.Stop)
	case ActionNextTrack:
		return simple(h.NextTrack)
	case ActionPreviousTrack:
		return simple(h.PreviousTrack)
	case ActionSeekBackward:
		if h.SeekBackward != nil {
			return func(d ActionDetails) { h.SeekBackward(d.SeekOffset) }
		}
	case ActionSeekForward:
		if h.SeekForward != nil {
			return func(d ActionDetails) { h.SeekForward(d.SeekOffset) }
		}
	case ActionSeekTo:
		if h.SeekTo != nil {
			return func(d ActionDetails) { h.SeekTo(d.SeekTime) }
		}
	}
	return nil
}

// Bridge 媒体控制桥，session 为 nil 时所有操作都是空操作，任何操作都不会返回错误
type Bridge struct {
	session Session

	mu         sync.Mutex
	registered []Action
	destroyed  bool
}

// NewBridge 创建媒体控制桥
func NewBridge(session Session) *Bridge {
	return &Bridge{session: session}
}

// Available 是否存在系统媒体会话
func (b *Bridge) Available() bool {
	return b.session != nil
}

// RegisterHandlers 注册指令回调，单个指令失败不影响其它指令，返回注册成功的指令
func (b *Bridge) RegisterHandlers(h Handlers) []Action {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil || b.destroyed {
		return nil
	}

	var ok []Action
	for _, action := range Actions {
		handler := h.forAction(action)
		if handler == nil {
			continue
		}
		if err := b.session.SetActionHandler(action, handler); err != nil {
			logger.Debug("媒体控制指令注册失败",
				logger.String("action", string(action)),
				logger.ErrorField(err))
			continue
		}
		ok = append(ok, action)
		if !slices.Contains(b.registered, action) {
			b.registered = append(b.registered, action)
		}
	}
	return ok
}

// UpdateMetadata 设置正在播放信息，nil 表示清空
func (b *Bridge) UpdateMetadata(meta *model.TrackMetadata) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil || b.destroyed {
		return
	}

	var m *Metadata
	if meta != nil {
		m = &Metadata{
			Title:  meta.Title,
			Artist: meta.Artist,
			Album:  meta.Album,
		}
		if meta.Image != "" {
			m.Artwork = []Artwork{{Src: meta.Image}}
		}
	}
	if err := b.session.SetMetadata(m); err != nil {
		logger.Debug("更新媒体信息失败", logger.ErrorField(err))
	}
}

// UpdatePlaybackState 设置播放状态
func (b *Bridge) UpdatePlaybackState(state PlaybackState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil || b.destroyed {
		return
	}
	if err := b.session.SetPlaybackState(state); err != nil {
		logger.Debug("更新播放状态失败", logger.ErrorField(err))
	}
}

// UpdatePositionState 更新播放位置，position 会被限制在 [0, duration]
// duration 不是有限正数或宿主拒绝时静默跳过；rate 无效时按 1 处理
func (b *Bridge) UpdatePositionState(position, duration, rate float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil || b.destroyed {
		return
	}
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate == 0 {
		rate = 1
	}
	if math.IsNaN(position) || position < 0 {
		position = 0
	}
	position = min(position, duration)

	err := b.session.SetPositionState(PositionState{
		Duration:     duration,
		PlaybackRate: rate,
		Position:     position,
	})
	if err != nil {
		logger.Debug("更新播放位置失败", logger.ErrorField(err))
	}
}

// Destroy 清空信息、状态置为 none 并注销所有指令，可重复调用
func (b *Bridge) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return
	}
	b.destroyed = true
	if b.session == nil {
		return
	}

	if err := b.session.SetMetadata(nil); err != nil {
		logger.Debug("清空媒体信息失败", logger.ErrorField(err))
	}
	if err := b.session.SetPlaybackState(PlaybackNone); err != nil {
		logger.Debug("重置播放状态失败", logger.ErrorField(err))
	}
	for _, action := range b.registered {
		if err := b.session.SetActionHandler(action, nil); err != nil {
			logger.Debug("注销媒体控制指令失败",
				logger.String("action", string(action)),
				logger.ErrorField(err))
		}
	}
	b.registered = nil
}
