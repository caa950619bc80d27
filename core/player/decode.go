package player

import (
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"strings"
	"sync"

	"BucketFM/core/trackmeta"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedFormat 没有对应扩展名的解码器
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Decode 按定位符扩展名选择解码器
func Decode(locator string, rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(path.Ext(trackmeta.StripQueryAndFragment(locator)))
	switch ext {
	case ".mp3":
		return mp3.Decode(rc)
	case ".flac":
		return flac.Decode(rc)
	case ".ogg", ".oga":
		return vorbis.Decode(rc)
	case ".wav":
		return wav.Decode(rc)
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// streamDuration 返回流时长（秒），无法计算时返回 NaN
func streamDuration(s beep.StreamSeekCloser, format beep.Format) float64 {
	if s == nil || format.SampleRate <= 0 {
		return math.NaN()
	}
	n := s.Len()
	if n <= 0 {
		return math.NaN()
	}
	return format.SampleRate.D(n).Seconds()
}

// emitter 输出资源的事件订阅表
type emitter struct {
	mu        sync.Mutex
	listeners map[int]func(OutputEvent)
	nextID    int
}

func (e *emitter) subscribe(fn func(OutputEvent)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listeners == nil {
		e.listeners = make(map[int]func(OutputEvent))
	}
	e.nextID++
	id := e.nextID
	e.listeners[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
	}
}

func (e *emitter) emit(ev OutputEvent) {
	e.mu.Lock()
	fns := make([]func(OutputEvent), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (e *emitter) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.listeners)
}
