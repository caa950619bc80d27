package player

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOutput 可以手动驱动时间和事件的输出资源
type fakeOutput struct {
	events emitter

	mu          sync.Mutex
	source      string
	playErr     error
	playing     bool
	currentTime float64
	duration    float64
	seeks       []float64
	pauses      int
	closes      int
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{duration: math.NaN()}
}

func (f *fakeOutput) SetSource(locator string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.source = locator
	f.playing = false
	return nil
}

func (f *fakeOutput) Source() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.source
}

func (f *fakeOutput) Play(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.playing = true
	return nil
}

func (f *fakeOutput) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
	f.pauses++
}

func (f *fakeOutput) Seek(position float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, position)
	f.currentTime = position
	return nil
}

func (f *fakeOutput) CurrentTime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentTime
}

func (f *fakeOutput) Duration() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration
}

func (f *fakeOutput) Subscribe(fn func(OutputEvent)) func() {
	return f.events.subscribe(fn)
}

func (f *fakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

// tick 模拟一次 timeupdate
func (f *fakeOutput) tick(currentTime, duration float64) {
	f.mu.Lock()
	f.currentTime = currentTime
	f.duration = duration
	f.mu.Unlock()
	f.events.emit(OutputEvent{Type: OutputTimeUpdate})
}

type recordingPreloader struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingPreloader) Preload(locator string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, locator)
}

func (r *recordingPreloader) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestPreloadTrigger(t *testing.T) {
	tests := []struct {
		name        string
		currentTime float64
		duration    float64
		want        int
	}{
		{"inside threshold", 85, 100, 1},
		{"before threshold", 50, 100, 0},
		{"exactly at threshold", 80, 100, 0},
		{"unknown duration", 99, math.NaN(), 0},
		{"infinite duration", 99, math.Inf(1), 0},
		{"zero duration", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := newFakeOutput()
			pre := &recordingPreloader{}
			m := NewManager(out, WithPreloader(pre))

			require.NoError(t, m.SetTrack("http://h/a/b/01__x.mp3"))
			m.SetNextTrack("http://h/a/b/02__y.mp3")
			out.tick(tt.currentTime, tt.duration)

			assert.Equal(t, tt.want, pre.count())
		})
	}
}

func TestPreloadNeedsNextTrack(t *testing.T) {
	out := newFakeOutput()
	pre := &recordingPreloader{}
	m := NewManager(out, WithPreloader(pre))

	require.NoError(t, m.SetTrack("a.mp3"))
	out.tick(95, 100)
	assert.Zero(t, pre.count())

	m.SetNextTrack("b.mp3")
	out.tick(96, 100)
	out.tick(97, 100)
	assert.Equal(t, []string{"b.mp3"}, pre.calls)

	m.SetNextTrack("c.mp3")
	out.tick(98, 100)
	assert.Equal(t, []string{"b.mp3", "c.mp3"}, pre.calls)
}

func TestPreloadThresholdOption(t *testing.T) {
	out := newFakeOutput()
	pre := &recordingPreloader{}
	m := NewManager(out, WithPreloader(pre), WithPreloadThreshold(60e9))

	require.NoError(t, m.SetTrack("a.mp3"))
	m.SetNextTrack("b.mp3")
	out.tick(50, 100)
	assert.Equal(t, 1, pre.count())
}

func TestPlay(t *testing.T) {
	t.Run("no source", func(t *testing.T) {
		m := NewManager(newFakeOutput())
		assert.ErrorIs(t, m.Play(context.Background()), ErrNoSource)
	})

	t.Run("rejection surfaced", func(t *testing.T) {
		out := newFakeOutput()
		boom := errors.New("decode failed")
		out.playErr = boom
		m := NewManager(out)

		require.NoError(t, m.SetTrack("a.mp3"))
		err := m.Play(context.Background())
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, StatePaused, m.State())
	})

	t.Run("state machine", func(t *testing.T) {
		out := newFakeOutput()
		m := NewManager(out)
		assert.Equal(t, StateIdle, m.State())

		require.NoError(t, m.SetTrack("a.mp3"))
		assert.Equal(t, StateLoading, m.State())

		require.NoError(t, m.Play(context.Background()))
		assert.Equal(t, StatePlaying, m.State())
		assert.True(t, m.Status().IsPlaying)

		m.Pause()
		m.Pause()
		assert.Equal(t, StatePaused, m.State())

		require.NoError(t, m.Play(context.Background()))
		out.events.emit(OutputEvent{Type: OutputEnded})
		assert.Equal(t, StateIdle, m.State())
	})
}

func TestSetTrackEmptyClears(t *testing.T) {
	out := newFakeOutput()
	m := NewManager(out)

	require.NoError(t, m.SetTrack("a.mp3"))
	require.NoError(t, m.Play(context.Background()))
	require.NoError(t, m.SetTrack(""))

	assert.Empty(t, out.Source())
	assert.Empty(t, m.Current())
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, 1, out.pauses)
}

func TestEvents(t *testing.T) {
	out := newFakeOutput()
	m := NewManager(out)
	require.NoError(t, m.SetTrack("a.mp3"))

	var got []EventType
	unsubscribe := m.Subscribe(func(ev Event) {
		got = append(got, ev.Type)
		assert.Equal(t, "a.mp3", ev.Locator)
	})

	out.events.emit(OutputEvent{Type: OutputLoadedMetadata})
	out.tick(1, 100)
	out.events.emit(OutputEvent{Type: OutputEnded})
	out.events.emit(OutputEvent{Type: OutputError, Err: errors.New("x")})
	assert.Equal(t, []EventType{EventMetadataReady, EventProgress, EventEnded, EventError}, got)

	unsubscribe()
	out.tick(2, 100)
	assert.Len(t, got, 4)
}

func TestListenerMayCallManager(t *testing.T) {
	out := newFakeOutput()
	m := NewManager(out)
	require.NoError(t, m.SetTrack("a.mp3"))

	var status Status
	m.Subscribe(func(Event) { status = m.Status() })
	out.tick(10, 100)

	assert.Equal(t, 10.0, status.CurrentTime)
	assert.True(t, status.DurationKnown)
}

func TestSeekClamps(t *testing.T) {
	out := newFakeOutput()
	m := NewManager(out)
	assert.ErrorIs(t, m.Seek(3), ErrNoSource)

	require.NoError(t, m.SetTrack("a.mp3"))
	out.tick(0, 100)

	require.NoError(t, m.Seek(-5))
	require.NoError(t, m.Seek(250))
	require.NoError(t, m.Seek(42))
	assert.Equal(t, []float64{0, 100, 42}, out.seeks)
}

func TestDurationPassThrough(t *testing.T) {
	out := newFakeOutput()
	m := NewManager(out)
	assert.True(t, math.IsNaN(m.Duration()))

	st := m.Status()
	assert.False(t, st.DurationKnown)
	assert.Zero(t, st.Duration)

	out.tick(3, 180)
	assert.Equal(t, 180.0, m.Duration())
	assert.Equal(t, 3.0, m.CurrentTime())
}

func TestDestroyIdempotent(t *testing.T) {
	out := newFakeOutput()
	pre := &recordingPreloader{}
	m := NewManager(out, WithPreloader(pre))

	require.NoError(t, m.SetTrack("a.mp3"))
	m.SetNextTrack("b.mp3")

	events := 0
	m.Subscribe(func(Event) { events++ })

	for range 2 {
		assert.NotPanics(t, m.Destroy)
		assert.Empty(t, out.Source())
		assert.Empty(t, m.Current())
		assert.Empty(t, m.Next())
		assert.Equal(t, StateIdle, m.State())
	}
	assert.Equal(t, 1, out.closes)

	// 销毁后输出资源的事件不再处理
	out.tick(95, 100)
	assert.Zero(t, events)
	assert.Zero(t, pre.count())

	assert.ErrorIs(t, m.SetTrack("c.mp3"), ErrDestroyed)
	assert.ErrorIs(t, m.Play(context.Background()), ErrDestroyed)
	assert.True(t, math.IsNaN(m.Duration()))
}
