package player

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wavBytes 生成单声道 16 位 PCM 静音 WAV
func wavBytes(sampleRate, samples int) []byte {
	dataSize := samples * 2
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(make([]byte, dataSize))
	return buf.Bytes()
}

func wavOpener(data []byte, opens *atomic.Int32) Opener {
	return func(context.Context, string) (io.ReadCloser, error) {
		if opens != nil {
			opens.Add(1)
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

func TestDecode(t *testing.T) {
	stream, format, err := Decode("http://h/a/b/01__x.WAV?sig=1", io.NopCloser(bytes.NewReader(wavBytes(8000, 8000))))
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, 8000, int(format.SampleRate))
	assert.InDelta(t, 1.0, streamDuration(stream, format), 0.001)

	_, _, err = Decode("song.aac", io.NopCloser(bytes.NewReader(nil)))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestBeepPreloader(t *testing.T) {
	var opens atomic.Int32
	p := NewBeepPreloader(wavOpener(wavBytes(8000, 16000), &opens), PreloadConfig{})

	p.Preload("next.wav")
	p.Wait()
	assert.True(t, p.Warmed("next.wav"))

	// 已预热的定位符在 TTL 内不会重复加载
	p.Preload("next.wav")
	p.Wait()
	assert.Equal(t, int32(1), opens.Load())
}

func TestBeepPreloaderFailure(t *testing.T) {
	p := NewBeepPreloader(func(context.Context, string) (io.ReadCloser, error) {
		return nil, errors.New("object missing")
	}, PreloadConfig{})

	p.Preload("gone.mp3")
	p.Wait()
	assert.False(t, p.Warmed("gone.mp3"))

	p = NewBeepPreloader(wavOpener([]byte("not audio"), nil), PreloadConfig{})
	p.Preload("bad.wav")
	p.Wait()
	assert.False(t, p.Warmed("bad.wav"))
}

func TestNullOutputPlaysToEnd(t *testing.T) {
	out := NewNullOutput(wavOpener(wavBytes(8000, 400), nil)) // 50ms
	out.interval = 5 * time.Millisecond

	var metadata, ended atomic.Int32
	out.Subscribe(func(ev OutputEvent) {
		switch ev.Type {
		case OutputLoadedMetadata:
			metadata.Add(1)
		case OutputEnded:
			ended.Add(1)
		}
	})

	assert.ErrorIs(t, out.Play(context.Background()), ErrNoSource)

	require.NoError(t, out.SetSource("clip.wav"))
	assert.True(t, math.IsNaN(out.Duration()))

	require.NoError(t, out.Play(context.Background()))
	assert.Equal(t, int32(1), metadata.Load())
	assert.InDelta(t, 0.05, out.Duration(), 0.001)

	assert.Eventually(t, func() bool { return ended.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.InDelta(t, 0.05, out.CurrentTime(), 0.001)
}

func TestNullOutputPauseAndSeek(t *testing.T) {
	out := NewNullOutput(nil)
	require.NoError(t, out.SetSource("a.mp3"))
	require.NoError(t, out.Play(context.Background()))
	assert.True(t, math.IsNaN(out.Duration()))

	out.Pause()
	paused := out.CurrentTime()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, paused, out.CurrentTime())

	require.NoError(t, out.Seek(30))
	assert.Equal(t, 30.0, out.CurrentTime())

	require.NoError(t, out.Close())
	assert.Empty(t, out.Source())
}

func TestManagerWithNullOutput(t *testing.T) {
	out := NewNullOutput(wavOpener(wavBytes(8000, 800), nil)) // 100ms
	out.interval = 5 * time.Millisecond

	var preloads atomic.Int32
	m := NewManager(out,
		WithPreloader(PreloaderFunc(func(string) { preloads.Add(1) })),
		WithPreloadThreshold(80*time.Millisecond))
	defer m.Destroy()

	var ended atomic.Bool
	m.Subscribe(func(ev Event) {
		if ev.Type == EventEnded {
			ended.Store(true)
		}
	})

	require.NoError(t, m.SetTrack("a.wav"))
	m.SetNextTrack("b.wav")
	require.NoError(t, m.Play(context.Background()))

	assert.Eventually(t, ended.Load, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), preloads.Load())
	assert.Equal(t, StateIdle, m.State())
}
