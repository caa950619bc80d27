// Package library 在播放管理器之上按专辑顺序播放曲目
package library

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"BucketFM/core/album"
	"BucketFM/core/mediactl"
	"BucketFM/core/player"
	"BucketFM/core/trackmeta"
	"BucketFM/logger"
	"BucketFM/model"
)

// restartThreshold 播放超过这个秒数时"上一首"回到开头
const restartThreshold = 3.0

// ErrEndOfAlbum 没有下一首 / 上一首
var ErrEndOfAlbum = errors.New("end of album")

// NowPlaying 正在播放的曲目
type NowPlaying struct {
	Locator  string              `json:"locator"`
	Metadata model.TrackMetadata `json:"metadata"`
	Status   player.Status       `json:"status"`
}

// Queue 专辑播放队列，曲目结束后自动切到下一首
type Queue struct {
	manager  *player.Manager
	resolver *album.Resolver
	deriver  *trackmeta.Deriver
	bridge   *mediactl.Bridge

	mu          sync.Mutex
	locator     string
	metadata    model.TrackMetadata
	unsubscribe func()
	closed      bool

	onChange func(NowPlaying)
	onEnd    func(last string)
}

// QueueOption 配置 Queue
type QueueOption func(*Queue)

// WithBridge 同步正在播放信息到媒体控制桥
func WithBridge(b *mediactl.Bridge) QueueOption {
	return func(q *Queue) { q.bridge = b }
}

// WithDeriver 指定元数据推导器，默认使用进程级默认实例
func WithDeriver(d *trackmeta.Deriver) QueueOption {
	return func(q *Queue) { q.deriver = d }
}

// OnTrackChange 切换曲目后回调
func OnTrackChange(fn func(NowPlaying)) QueueOption {
	return func(q *Queue) { q.onChange = fn }
}

// OnAlbumEnd 专辑最后一首播放结束后回调
func OnAlbumEnd(fn func(last string)) QueueOption {
	return func(q *Queue) { q.onEnd = fn }
}

// NewQueue 创建播放队列
func NewQueue(manager *player.Manager, resolver *album.Resolver, opts ...QueueOption) *Queue {
	q := &Queue{
		manager:  manager,
		resolver: resolver,
		bridge:   mediactl.NewBridge(nil),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.deriver == nil {
		q.deriver = trackmeta.Default()
	}
	q.unsubscribe = manager.Subscribe(q.handleEvent)
	return q
}

// Play 播放指定曲目，并把同专辑的下一首设为预加载目标
func (q *Queue) Play(ctx context.Context, locator string) error {
	if locator == "" {
		return player.ErrNoSource
	}

	meta := q.deriver.Derive(ctx, locator)

	if err := q.manager.SetTrack(locator); err != nil {
		return err
	}
	q.mu.Lock()
	q.locator = locator
	q.metadata = meta
	q.mu.Unlock()

	q.bridge.UpdateMetadata(&meta)

	next, ok, err := q.resolver.NextTrack(ctx, locator)
	switch {
	case err != nil:
		logger.Warn("获取下一首失败", logger.String("locator", locator), logger.ErrorField(err))
		q.manager.SetNextTrack("")
	case ok:
		q.manager.SetNextTrack(next.URL)
	default:
		q.manager.SetNextTrack("")
	}

	if err := q.manager.Play(ctx); err != nil {
		q.bridge.UpdatePlaybackState(mediactl.StateFor(q.manager.State()))
		return err
	}
	q.bridge.UpdatePlaybackState(mediactl.PlaybackPlaying)

	logger.Info("开始播放",
		logger.String("artist", meta.Artist),
		logger.String("album", meta.Album),
		logger.String("title", meta.Title),
		logger.Int("trackNumber", meta.TrackNumber))

	if q.onChange != nil {
		q.onChange(q.NowPlaying())
	}
	return nil
}

// Next 播放下一首
func (q *Queue) Next(ctx context.Context) error {
	next := q.manager.Next()
	if next == "" {
		current := q.Locator()
		if current == "" {
			return player.ErrNoSource
		}
		track, ok, err := q.resolver.NextTrack(ctx, current)
		if err != nil {
			return fmt.Errorf("resolve next track: %w", err)
		}
		if !ok {
			return ErrEndOfAlbum
		}
		next = track.URL
	}
	return q.Play(ctx, next)
}

// Previous 播放超过几秒时回到开头，否则播放上一首；已经是第一首时回到开头
func (q *Queue) Previous(ctx context.Context) error {
	current := q.Locator()
	if current == "" {
		return player.ErrNoSource
	}
	if q.manager.CurrentTime() > restartThreshold {
		return q.manager.Seek(0)
	}

	tracks := q.resolver.GetAllAlbumTracks(ctx, "", current)
	idx := album.IndexOf(tracks, current)
	if idx <= 0 {
		return q.manager.Seek(0)
	}
	return q.Play(ctx, tracks[idx-1].URL)
}

// Locator 当前曲目定位符
func (q *Queue) Locator() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.locator
}

// NowPlaying 当前曲目和播放状态
func (q *Queue) NowPlaying() NowPlaying {
	q.mu.Lock()
	np := NowPlaying{Locator: q.locator, Metadata: q.metadata}
	q.mu.Unlock()

	np.Status = q.manager.Status()
	return np
}

// Close 停止自动切歌并清空媒体控制信息
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	unsubscribe := q.unsubscribe
	q.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	q.bridge.UpdateMetadata(nil)
	q.bridge.UpdatePlaybackState(mediactl.PlaybackNone)
}

func (q *Queue) handleEvent(ev player.Event) {
	if ev.Type != player.EventEnded {
		return
	}
	// 事件回调里不能阻塞输出资源
	go q.advance(ev.Locator)
}

func (q *Queue) advance(finished string) {
	q.mu.Lock()
	if q.closed || q.locator != finished {
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	err := q.Next(context.Background())
	switch {
	case errors.Is(err, ErrEndOfAlbum):
		logger.Info("专辑播放结束", logger.String("last", finished))
		q.bridge.UpdatePlaybackState(mediactl.PlaybackNone)
		if q.onEnd != nil {
			q.onEnd(finished)
		}
	case err != nil:
		logger.Error("自动切换下一首失败", logger.String("last", finished), logger.ErrorField(err))
	}
}
