package trackmeta

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"BucketFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const songLocator = "https://host/Artist/Album/03__Song.mp3"

// countingReader 记录调用次数，可选地阻塞直到 release 被关闭
type countingReader struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	tags    *model.RawTags
	err     error
}

func (r *countingReader) ReadTags(ctx context.Context, locator string) (*model.RawTags, error) {
	r.calls.Add(1)
	if r.started != nil {
		select {
		case r.started <- struct{}{}:
		default:
		}
	}
	if r.release != nil {
		<-r.release
	}
	return r.tags, r.err
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string]model.TagFields
	err  error
}

func (s *memoryStore) GetTags(ctx context.Context, key string) (*model.TagFields, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	f, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (s *memoryStore) SetTags(ctx context.Context, key string, fields model.TagFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string]model.TagFields)
	}
	s.data[key] = fields
	return nil
}

func TestDerive_SkipTags(t *testing.T) {
	reader := &countingReader{tags: &model.RawTags{Title: "Tagged", Image: "cover"}}
	d := New(WithReader(reader))

	got := d.Derive(context.Background(), songLocator, SkipTags())

	assert.Equal(t, model.TrackMetadata{Artist: "Artist", Album: "Album", Title: "Song", TrackNumber: 3}, got)
	assert.Equal(t, int32(0), reader.calls.Load())
}

func TestDerive_NoReader(t *testing.T) {
	d := New()
	got := d.Derive(context.Background(), songLocator)
	assert.Equal(t, "Song", got.Title)
}

func TestDerive_ResolverFailureMeansNoReader(t *testing.T) {
	resolves := 0
	d := New(WithReaderResolver(func() (TagReader, error) {
		resolves++
		return nil, errors.New("unsupported runtime")
	}))

	got := d.Derive(context.Background(), songLocator)
	d.Derive(context.Background(), songLocator)

	assert.Equal(t, "Song", got.Title)
	assert.Equal(t, 1, resolves, "resolver is memoized")
}

func TestDerive_MergePrecedence(t *testing.T) {
	reader := &countingReader{tags: &model.RawTags{Artist: "Unknown", TrackNumber: 7, Title: " Real Title "}}
	d := New(WithReader(reader))

	got := d.Derive(context.Background(), "https://host/A/Album/03__Song.mp3")

	assert.Equal(t, "A", got.Artist)
	assert.Equal(t, 7, got.TrackNumber)
	assert.Equal(t, "Real Title", got.Title)
}

func TestDerive_CacheHitSkipsRead(t *testing.T) {
	reader := &countingReader{tags: &model.RawTags{Title: "Tagged"}}
	d := New(WithReader(reader))
	ctx := context.Background()

	first := d.Derive(ctx, songLocator)
	second := d.Derive(ctx, songLocator+"#t=30")

	assert.Equal(t, "Tagged", first.Title)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), reader.calls.Load())
	assert.Equal(t, int64(1), d.Stats().Hits)
}

func TestDerive_CacheHoldsTagFieldsOnly(t *testing.T) {
	reader := &countingReader{tags: &model.RawTags{Title: "Tagged"}}
	d := New(WithReader(reader))
	ctx := context.Background()

	d.Derive(ctx, "https://host/A/B/01__x.mp3?v=1")
	// 只有 fragment 不同，命中同一个缓存键，fallback 重新计算
	got := d.Derive(ctx, "https://host/A/B/01__x.mp3?v=1#frag")

	assert.Equal(t, "A", got.Artist)
	assert.Equal(t, "Tagged", got.Title)
	assert.Equal(t, 1, got.TrackNumber)
}

func TestDerive_FailedReadNotCached(t *testing.T) {
	reader := &countingReader{err: errors.New("network down")}
	d := New(WithReader(reader))
	ctx := context.Background()

	got := d.Derive(ctx, songLocator)
	d.Derive(ctx, songLocator)

	assert.Equal(t, "Song", got.Title)
	assert.Equal(t, int32(2), reader.calls.Load())
	assert.Equal(t, 0, d.Stats().Entries)
}

func TestDerive_EmptyTagsNotCached(t *testing.T) {
	reader := &countingReader{tags: &model.RawTags{Artist: "   "}}
	d := New(WithReader(reader))

	d.Derive(context.Background(), songLocator)

	assert.Equal(t, 0, d.Stats().Entries)
}

func TestDerive_ReaderPanicIsContained(t *testing.T) {
	d := New(WithReader(ReaderFunc(func(ctx context.Context, locator string) (*model.RawTags, error) {
		panic("boom")
	})))

	var got model.TrackMetadata
	assert.NotPanics(t, func() {
		got = d.Derive(context.Background(), songLocator)
	})
	assert.Equal(t, "Song", got.Title)
}

func TestDerive_ConcurrentCallsShareOneRead(t *testing.T) {
	reader := &countingReader{
		tags:    &model.RawTags{Title: "Shared"},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	d := New(WithReader(reader))
	ctx := context.Background()

	results := make(chan model.TrackMetadata, 2)
	go func() { results <- d.Derive(ctx, songLocator) }()

	select {
	case <-reader.started:
	case <-time.After(2 * time.Second):
		t.Fatal("reader was never called")
	}

	go func() { results <- d.Derive(ctx, songLocator) }()
	// 给第二个调用者时间加入正在进行的读取
	time.Sleep(20 * time.Millisecond)
	close(reader.release)

	for i := 0; i < 2; i++ {
		select {
		case got := <-results:
			assert.Equal(t, "Shared", got.Title)
		case <-time.After(2 * time.Second):
			t.Fatal("derive did not return")
		}
	}
	assert.Equal(t, int32(1), reader.calls.Load())
}

func TestDerive_IndependentInstances(t *testing.T) {
	reader := &countingReader{tags: &model.RawTags{Title: "Tagged"}}
	a := New(WithReader(reader))
	b := New(WithReader(reader))
	ctx := context.Background()

	a.Derive(ctx, songLocator)
	b.Derive(ctx, songLocator)
	require.Equal(t, 1, a.Stats().Entries)
	require.Equal(t, 1, b.Stats().Entries)

	a.Clear()

	assert.Equal(t, 0, a.Stats().Entries)
	assert.Equal(t, 1, b.Stats().Entries)
}

func TestDerive_Forget(t *testing.T) {
	reader := &countingReader{tags: &model.RawTags{Title: "Tagged"}}
	d := New(WithReader(reader))
	ctx := context.Background()

	d.Derive(ctx, songLocator)
	d.Forget(songLocator + "#x")
	d.Derive(ctx, songLocator)

	assert.Equal(t, int32(2), reader.calls.Load())
}

func TestDerive_ClearDuringReadIsNotUndone(t *testing.T) {
	for name, invalidate := range map[string]func(d *Deriver){
		"clear":  func(d *Deriver) { d.Clear() },
		"forget": func(d *Deriver) { d.Forget(songLocator) },
	} {
		t.Run(name, func(t *testing.T) {
			reader := &countingReader{
				tags:    &model.RawTags{Title: "Stale"},
				started: make(chan struct{}, 1),
				release: make(chan struct{}),
			}
			store := &memoryStore{}
			d := New(WithReader(reader), WithTagStore(store))

			done := make(chan model.TrackMetadata, 1)
			go func() { done <- d.Derive(context.Background(), songLocator) }()

			select {
			case <-reader.started:
			case <-time.After(2 * time.Second):
				t.Fatal("reader was never called")
			}
			invalidate(d)
			close(reader.release)

			select {
			case got := <-done:
				// 调用者仍然拿到读取结果，只是不写入缓存
				assert.Equal(t, "Stale", got.Title)
			case <-time.After(2 * time.Second):
				t.Fatal("derive did not return")
			}
			assert.Equal(t, 0, d.Stats().Entries)
			assert.Empty(t, store.data)

			// 下一次调用重新读取
			d.Derive(context.Background(), songLocator)
			assert.Equal(t, int32(2), reader.calls.Load())
			assert.Equal(t, 1, d.Stats().Entries)
		})
	}
}

func TestDerive_TagStore(t *testing.T) {
	ctx := context.Background()

	t.Run("store hit skips reader", func(t *testing.T) {
		store := &memoryStore{data: map[string]model.TagFields{songLocator: {Album: "Stored"}}}
		reader := &countingReader{tags: &model.RawTags{Album: "Read"}}
		d := New(WithReader(reader), WithTagStore(store))

		got := d.Derive(ctx, songLocator)

		assert.Equal(t, "Stored", got.Album)
		assert.Equal(t, int32(0), reader.calls.Load())
		assert.Equal(t, 1, d.Stats().Entries)
	})

	t.Run("successful read is written through", func(t *testing.T) {
		store := &memoryStore{}
		reader := &countingReader{tags: &model.RawTags{Album: "Read"}}
		d := New(WithReader(reader), WithTagStore(store))

		d.Derive(ctx, songLocator)

		assert.Equal(t, "Read", store.data[songLocator].Album)
	})

	t.Run("store errors fall through to reader", func(t *testing.T) {
		store := &memoryStore{err: errors.New("redis down")}
		reader := &countingReader{tags: &model.RawTags{Album: "Read"}}
		d := New(WithReader(reader), WithTagStore(store))

		got := d.Derive(ctx, songLocator)

		assert.Equal(t, "Read", got.Album)
	})
}

func TestDefaultDeriver(t *testing.T) {
	original := Default()
	t.Cleanup(func() { SetDefault(original) })

	reader := &countingReader{tags: &model.RawTags{Title: "From Default"}}
	SetDefault(New(WithReader(reader)))
	SetDefault(nil)

	assert.Equal(t, "From Default", Derive(context.Background(), songLocator).Title)
}
