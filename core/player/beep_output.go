package player

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"BucketFM/logger"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

const (
	speakerSampleRate = beep.SampleRate(44100)
	speakerBuffer     = 100 * time.Millisecond
	tickInterval      = 250 * time.Millisecond
)

var (
	speakerOnce sync.Once
	speakerErr  error
)

func initSpeaker() error {
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(speakerSampleRate, speakerSampleRate.N(speakerBuffer))
		if speakerErr == nil {
			logger.Info("音频设备初始化完成", logger.Int("sampleRate", int(speakerSampleRate)))
		}
	})
	return speakerErr
}

// sink 最终的声音输出，默认是 beep 的 speaker
type sink interface {
	Init() error
	Play(s beep.Streamer)
	Lock()
	Unlock()
	Clear()
}

type speakerSink struct{}

func (speakerSink) Init() error          { return initSpeaker() }
func (speakerSink) Play(s beep.Streamer) { speaker.Play(s) }
func (speakerSink) Lock()                { speaker.Lock() }
func (speakerSink) Unlock()              { speaker.Unlock() }
func (speakerSink) Clear()               { speaker.Clear() }

// BeepOutput 通过 beep 扬声器播放的音频输出
// speaker 是进程级单例，同一进程只应创建一个 BeepOutput
type BeepOutput struct {
	open   Opener
	sink   sink
	events emitter

	mu         sync.Mutex
	source     string
	generation int
	// 音源的生命周期，SetSource 和 Close 时取消；Play 的 ctx 只约束打开过程
	srcCtx    context.Context
	srcCancel context.CancelFunc
	rc        io.ReadCloser
	stream    beep.StreamSeekCloser
	format    beep.Format
	ctrl      *beep.Ctrl
	drained   bool
	stopTick  chan struct{}
}

// NewBeepOutput 创建扬声器输出
func NewBeepOutput(open Opener) *BeepOutput {
	return newBeepOutput(open, speakerSink{})
}

func newBeepOutput(open Opener, s sink) *BeepOutput {
	return &BeepOutput{open: open, sink: s}
}

// SetSource implements Output.
func (o *BeepOutput) SetSource(locator string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.generation++
	o.teardownLocked()
	o.source = locator
	if locator != "" {
		o.srcCtx, o.srcCancel = context.WithCancel(context.Background())
	}
	return nil
}

// Source implements Output.
func (o *BeepOutput) Source() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.source
}

// Play implements Output.
func (o *BeepOutput) Play(ctx context.Context) error {
	o.mu.Lock()
	if o.source == "" {
		o.mu.Unlock()
		return ErrNoSource
	}
	if o.ctrl != nil && !o.drained {
		o.sink.Lock()
		o.ctrl.Paused = false
		o.sink.Unlock()
		o.startTickerLocked()
		o.mu.Unlock()
		return nil
	}
	if o.drained {
		// 播完后 speaker 已经丢弃了旧的 Seq，需要重新挂载
		err := o.restartLocked()
		o.mu.Unlock()
		if err != nil {
			o.events.emit(OutputEvent{Type: OutputError, Err: err})
		}
		return err
	}
	source, gen, srcCtx := o.source, o.generation, o.srcCtx
	o.mu.Unlock()

	if err := o.sink.Init(); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}

	rc, err := o.openSource(ctx, srcCtx, source)
	if err != nil {
		return o.loadFailed(gen, err)
	}
	stream, format, err := Decode(source, rc)
	if err != nil {
		rc.Close()
		return o.loadFailed(gen, err)
	}

	o.mu.Lock()
	if gen != o.generation {
		// 加载期间音源已被替换
		o.mu.Unlock()
		stream.Close()
		rc.Close()
		return nil
	}
	o.rc, o.stream, o.format = rc, stream, format
	ctrl := o.mountLocked(gen)
	o.mu.Unlock()

	o.events.emit(OutputEvent{Type: OutputLoadedMetadata})
	o.sink.Play(ctrl)
	return nil
}

// loadFailed 上报加载失败；音源已被替换时旧的失败直接丢弃
func (o *BeepOutput) loadFailed(gen int, err error) error {
	o.mu.Lock()
	stale := gen != o.generation
	o.mu.Unlock()
	if stale {
		return nil
	}
	o.events.emit(OutputEvent{Type: OutputError, Err: err})
	return err
}

// openSource 打开音源。返回的流属于音源的生命周期，
// 调用方的 ctx 取消只会中断还没完成的打开过程
func (o *BeepOutput) openSource(ctx, srcCtx context.Context, source string) (io.ReadCloser, error) {
	if srcCtx == nil {
		srcCtx = context.Background()
	}
	openCtx, cancel := context.WithCancel(srcCtx)
	stop := context.AfterFunc(ctx, cancel)

	rc, err := o.open(openCtx, source)
	if !stop() {
		// 打开期间调用方已取消
		if err == nil {
			rc.Close()
		}
		cancel()
		return nil, ctx.Err()
	}
	if err != nil {
		cancel()
		return nil, err
	}
	// cancel 随 srcCtx 一起释放
	return rc, nil
}

// mountLocked 把当前流挂到一个新的 Ctrl 上并开始计时
func (o *BeepOutput) mountLocked(gen int) *beep.Ctrl {
	var s beep.Streamer = o.stream
	if o.format.SampleRate != speakerSampleRate {
		s = beep.Resample(4, o.format.SampleRate, speakerSampleRate, o.stream)
	}
	o.ctrl = &beep.Ctrl{Streamer: beep.Seq(s, beep.Callback(func() {
		// 回调运行在 speaker 的锁内，必须异步处理
		go o.finished(gen)
	}))}
	o.drained = false
	o.startTickerLocked()
	return o.ctrl
}

// restartLocked 播完后再次播放，停在结尾时从头开始
func (o *BeepOutput) restartLocked() error {
	if l := o.stream.Len(); l > 0 && o.stream.Position() >= l {
		if err := o.stream.Seek(0); err != nil {
			return fmt.Errorf("rewind %s: %w", o.source, err)
		}
	}
	ctrl := o.mountLocked(o.generation)
	o.sink.Play(ctrl)
	return nil
}

// Pause implements Output.
func (o *BeepOutput) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ctrl != nil {
		o.sink.Lock()
		o.ctrl.Paused = true
		o.sink.Unlock()
	}
	o.stopTickerLocked()
}

// Seek implements Output.
func (o *BeepOutput) Seek(position float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stream == nil {
		return ErrNoSource
	}
	n := o.format.SampleRate.N(time.Duration(position * float64(time.Second)))
	if l := o.stream.Len(); l > 0 && n > l {
		n = l
	}

	o.sink.Lock()
	defer o.sink.Unlock()
	return o.stream.Seek(n)
}

// CurrentTime implements Output.
func (o *BeepOutput) CurrentTime() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stream == nil {
		return 0
	}
	o.sink.Lock()
	pos := o.stream.Position()
	o.sink.Unlock()
	return o.format.SampleRate.D(pos).Seconds()
}

// Duration implements Output.
func (o *BeepOutput) Duration() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stream == nil {
		return math.NaN()
	}
	return streamDuration(o.stream, o.format)
}

// Subscribe implements Output.
func (o *BeepOutput) Subscribe(fn func(OutputEvent)) func() {
	return o.events.subscribe(fn)
}

// Close implements Output.
func (o *BeepOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.generation++
	o.teardownLocked()
	o.source = ""
	o.events.reset()
	return nil
}

func (o *BeepOutput) finished(gen int) {
	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		return
	}
	o.stopTickerLocked()
	o.drained = true
	o.mu.Unlock()

	o.events.emit(OutputEvent{Type: OutputEnded})
}

func (o *BeepOutput) teardownLocked() {
	o.stopTickerLocked()
	if o.ctrl != nil {
		o.sink.Clear()
		o.ctrl = nil
	}
	o.drained = false
	if o.srcCancel != nil {
		o.srcCancel()
		o.srcCtx, o.srcCancel = nil, nil
	}
	if o.stream != nil {
		if err := o.stream.Close(); err != nil {
			logger.Debug("关闭解码流失败", logger.ErrorField(err))
		}
		o.stream = nil
	}
	if o.rc != nil {
		o.rc.Close()
		o.rc = nil
	}
}

func (o *BeepOutput) startTickerLocked() {
	if o.stopTick != nil {
		return
	}
	stop := make(chan struct{})
	o.stopTick = stop

	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				o.events.emit(OutputEvent{Type: OutputTimeUpdate})
			}
		}
	}()
}

func (o *BeepOutput) stopTickerLocked() {
	if o.stopTick != nil {
		close(o.stopTick)
		o.stopTick = nil
	}
}
