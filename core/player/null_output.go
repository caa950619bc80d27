package player

import (
	"context"
	"math"
	"sync"
	"time"
)

// NullOutput 无声输出，用于没有音频设备的服务端
// 按墙上时钟推进播放位置；设置了 Opener 时会解码文件头获取时长
type NullOutput struct {
	opener   Opener
	interval time.Duration
	events   emitter

	mu         sync.Mutex
	source     string
	generation int
	duration   float64
	offset     float64
	startedAt  time.Time
	playing    bool
	stopTick   chan struct{}
}

// NewNullOutput 创建无声输出，opener 可以为空
func NewNullOutput(opener Opener) *NullOutput {
	return &NullOutput{
		opener:   opener,
		interval: tickInterval,
		duration: math.NaN(),
	}
}

// SetSource implements Output.
func (o *NullOutput) SetSource(locator string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.generation++
	o.stopTickerLocked()
	o.source = locator
	o.duration = math.NaN()
	o.offset = 0
	o.playing = false
	return nil
}

// Source implements Output.
func (o *NullOutput) Source() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.source
}

// Play implements Output.
func (o *NullOutput) Play(ctx context.Context) error {
	o.mu.Lock()
	if o.source == "" {
		o.mu.Unlock()
		return ErrNoSource
	}
	source, gen := o.source, o.generation
	needDuration := o.opener != nil && math.IsNaN(o.duration)
	o.mu.Unlock()

	if needDuration {
		d, err := o.measureDuration(ctx, source)
		if err != nil {
			o.events.emit(OutputEvent{Type: OutputError, Err: err})
			return err
		}
		o.mu.Lock()
		if gen != o.generation {
			o.mu.Unlock()
			return nil
		}
		o.duration = d
		o.mu.Unlock()
		o.events.emit(OutputEvent{Type: OutputLoadedMetadata})
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation || o.playing {
		return nil
	}
	o.playing = true
	o.startedAt = time.Now()
	o.startTickerLocked(gen)
	return nil
}

// Pause implements Output.
func (o *NullOutput) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.playing {
		o.offset = o.positionLocked()
		o.playing = false
	}
	o.stopTickerLocked()
}

// Seek implements Output.
func (o *NullOutput) Seek(position float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.source == "" {
		return ErrNoSource
	}
	o.offset = position
	if o.playing {
		o.startedAt = time.Now()
	}
	return nil
}

// CurrentTime implements Output.
func (o *NullOutput) CurrentTime() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.positionLocked()
}

// Duration implements Output.
func (o *NullOutput) Duration() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.duration
}

// Subscribe implements Output.
func (o *NullOutput) Subscribe(fn func(OutputEvent)) func() {
	return o.events.subscribe(fn)
}

// Close implements Output.
func (o *NullOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.generation++
	o.stopTickerLocked()
	o.source = ""
	o.playing = false
	o.events.reset()
	return nil
}

func (o *NullOutput) measureDuration(ctx context.Context, locator string) (float64, error) {
	rc, err := o.opener(ctx, locator)
	if err != nil {
		return math.NaN(), err
	}
	defer rc.Close()

	stream, format, err := Decode(locator, rc)
	if err != nil {
		return math.NaN(), err
	}
	defer stream.Close()
	return streamDuration(stream, format), nil
}

func (o *NullOutput) positionLocked() float64 {
	pos := o.offset
	if o.playing {
		pos += time.Since(o.startedAt).Seconds()
	}
	if IsValidDuration(o.duration) && pos > o.duration {
		pos = o.duration
	}
	return pos
}

func (o *NullOutput) startTickerLocked(gen int) {
	if o.stopTick != nil {
		return
	}
	stop := make(chan struct{})
	o.stopTick = stop

	go func() {
		ticker := time.NewTicker(o.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if o.tick(gen) {
					return
				}
			}
		}
	}()
}

// tick 发出进度事件，播放到结尾时发出 ended 并返回 true
func (o *NullOutput) tick(gen int) bool {
	o.mu.Lock()
	if gen != o.generation || !o.playing {
		o.mu.Unlock()
		return true
	}
	ended := IsValidDuration(o.duration) && o.positionLocked() >= o.duration
	if ended {
		o.offset = o.duration
		o.playing = false
		o.stopTick = nil
	}
	o.mu.Unlock()

	o.events.emit(OutputEvent{Type: OutputTimeUpdate})
	if ended {
		o.events.emit(OutputEvent{Type: OutputEnded})
	}
	return ended
}

func (o *NullOutput) stopTickerLocked() {
	if o.stopTick != nil {
		close(o.stopTick)
		o.stopTick = nil
	}
}
