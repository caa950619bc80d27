package player

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSink 代替 speaker，测试里手动拉取样本
type fakeSink struct {
	mu       sync.Mutex
	played   []beep.Streamer
	streamMu sync.Mutex
}

func (s *fakeSink) Init() error { return nil }
func (s *fakeSink) Lock()       { s.streamMu.Lock() }
func (s *fakeSink) Unlock()     { s.streamMu.Unlock() }

func (s *fakeSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = nil
}

func (s *fakeSink) Play(st beep.Streamer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, st)
}

func (s *fakeSink) plays() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.played)
}

// drain 把最后挂载的流一直读到结束
func (s *fakeSink) drain() {
	s.mu.Lock()
	st := s.played[len(s.played)-1]
	s.mu.Unlock()

	buf := make([][2]float64, 512)
	for {
		s.streamMu.Lock()
		_, ok := st.Stream(buf)
		s.streamMu.Unlock()
		if !ok {
			return
		}
	}
}

type seekableFile struct{ *bytes.Reader }

func (seekableFile) Close() error { return nil }

type ctxRecorder struct {
	mu   sync.Mutex
	ctxs []context.Context
	data []byte
}

func (r *ctxRecorder) open(ctx context.Context, _ string) (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctxs = append(r.ctxs, ctx)
	return seekableFile{bytes.NewReader(r.data)}, nil
}

func (r *ctxRecorder) last() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctxs[len(r.ctxs)-1]
}

func endedSignal(o Output) <-chan struct{} {
	ch := make(chan struct{}, 4)
	o.Subscribe(func(ev OutputEvent) {
		if ev.Type == OutputEnded {
			ch <- struct{}{}
		}
	})
	return ch
}

func waitEnded(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("ended not emitted")
	}
}

func TestBeepOutputStreamOutlivesCaller(t *testing.T) {
	rec := &ctxRecorder{data: wavBytes(44100, 4410)}
	sink := &fakeSink{}
	o := newBeepOutput(rec.open, sink)
	t.Cleanup(func() { o.Close() })

	require.NoError(t, o.SetSource("a.wav"))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, o.Play(ctx))
	cancel()

	// 请求结束后流仍然可读
	opened := rec.last()
	assert.NoError(t, opened.Err())
	assert.Equal(t, 1, sink.plays())

	// 换源才结束上一个流
	require.NoError(t, o.SetSource("b.wav"))
	assert.Error(t, opened.Err())
}

func TestBeepOutputCallerCancelledBeforeOpen(t *testing.T) {
	rec := &ctxRecorder{data: wavBytes(44100, 4410)}
	o := newBeepOutput(rec.open, &fakeSink{})
	t.Cleanup(func() { o.Close() })

	var errs []error
	o.Subscribe(func(ev OutputEvent) {
		if ev.Type == OutputError {
			errs = append(errs, ev.Err)
		}
	})

	require.NoError(t, o.SetSource("a.wav"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, o.Play(ctx), context.Canceled)
	assert.Len(t, errs, 1)
}

func TestBeepOutputReplaysAfterEnd(t *testing.T) {
	rec := &ctxRecorder{data: wavBytes(44100, 4410)}
	sink := &fakeSink{}
	o := newBeepOutput(rec.open, sink)
	t.Cleanup(func() { o.Close() })
	ended := endedSignal(o)
	ctx := context.Background()

	require.NoError(t, o.SetSource("a.wav"))
	require.NoError(t, o.Play(ctx))
	assert.InDelta(t, 0.1, o.Duration(), 0.001)

	sink.drain()
	waitEnded(t, ended)
	assert.InDelta(t, 0.1, o.CurrentTime(), 0.001)

	// 播完后再播放会重新挂载并从头开始
	require.NoError(t, o.Play(ctx))
	assert.Equal(t, 2, sink.plays())
	assert.Zero(t, o.CurrentTime())

	sink.drain()
	waitEnded(t, ended)
}

func TestManagerResumeAfterEnd(t *testing.T) {
	rec := &ctxRecorder{data: wavBytes(44100, 4410)}
	sink := &fakeSink{}
	o := newBeepOutput(rec.open, sink)
	m := NewManager(o)
	t.Cleanup(m.Destroy)
	ended := endedSignal(o)
	ctx := context.Background()

	require.NoError(t, m.SetTrack("a.wav"))
	require.NoError(t, m.Play(ctx))
	sink.drain()
	waitEnded(t, ended)
	assert.Eventually(t, func() bool { return m.State() == StateIdle }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Play(ctx))
	assert.Equal(t, StatePlaying, m.State())

	sink.drain()
	waitEnded(t, ended)
}
