package mediactl

import (
	"context"
	"sync"
	"time"

	"BucketFM/core/player"
	"BucketFM/logger"
)

// DefaultSeekOffset 快进快退默认步长
const DefaultSeekOffset = 10 * time.Second

// Navigator 切换上一首 / 下一首
type Navigator interface {
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
}

// StateFor 播放器状态对应的媒体会话状态
func StateFor(s player.State) PlaybackState {
	switch s {
	case player.StatePlaying:
		return PlaybackPlaying
	case player.StatePaused, player.StateLoading:
		return PlaybackPaused
	default:
		return PlaybackNone
	}
}

// Bind 把播放管理器接到媒体控制桥上：系统指令转成播放器调用，播放事件同步为播放位置和状态
// nav 可以为 nil，此时不注册上一首 / 下一首。返回解除绑定的函数
func Bind(b *Bridge, m *player.Manager, nav Navigator, seekOffset time.Duration) func() {
	if seekOffset <= 0 {
		seekOffset = DefaultSeekOffset
	}
	step := func(offset float64) float64 {
		if offset > 0 {
			return offset
		}
		return seekOffset.Seconds()
	}
	syncState := func() { b.UpdatePlaybackState(StateFor(m.State())) }
	seek := func(position float64) {
		if err := m.Seek(position); err != nil {
			logger.Debug("媒体控制跳转失败", logger.ErrorField(err))
		}
	}

	h := Handlers{
		Play: func() {
			if err := m.Play(context.Background()); err != nil {
				logger.Warn("媒体控制播放失败", logger.ErrorField(err))
			}
			syncState()
		},
		Pause: func() {
			m.Pause()
			syncState()
		},
		Stop: func() {
			m.Pause()
			seek(0)
			syncState()
		},
		SeekBackward: func(offset float64) { seek(m.CurrentTime() - step(offset)) },
		SeekForward:  func(offset float64) { seek(m.CurrentTime() + step(offset)) },
		SeekTo:       seek,
	}
	if nav != nil {
		h.NextTrack = func() {
			if err := nav.Next(context.Background()); err != nil {
				logger.Warn("切换下一首失败", logger.ErrorField(err))
			}
		}
		h.PreviousTrack = func() {
			if err := nav.Previous(context.Background()); err != nil {
				logger.Warn("切换上一首失败", logger.ErrorField(err))
			}
		}
	}
	b.RegisterHandlers(h)

	var (
		mu     sync.Mutex
		warned string
	)
	return m.Subscribe(func(ev player.Event) {
		switch ev.Type {
		case player.EventProgress, player.EventMetadataReady:
			if !player.IsValidDuration(ev.Duration) {
				if ev.Type != player.EventProgress {
					return
				}
				// 每首曲目只告警一次
				mu.Lock()
				first := warned != ev.Locator
				warned = ev.Locator
				mu.Unlock()
				if first {
					logger.Warn("曲目时长无效，跳过播放位置更新",
						logger.String("locator", ev.Locator),
						logger.Float64("duration", ev.Duration))
				}
				return
			}
			b.UpdatePositionState(ev.CurrentTime, ev.Duration, 1)
		case player.EventEnded, player.EventError:
			syncState()
		}
	})
}
