package tagreader

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// id3v23 构造一个只包含文本帧的 ID3v2.3 标签，后面补齐静音数据
func id3v23(frames [][2]string) []byte {
	var body bytes.Buffer
	for _, f := range frames {
		payload := append([]byte{0x00}, f[1]...)
		body.WriteString(f[0])
		_ = binary.Write(&body, binary.BigEndian, uint32(len(payload)))
		body.Write([]byte{0, 0})
		body.Write(payload)
	}

	size := body.Len()
	header := []byte{'I', 'D', '3', 3, 0, 0,
		byte(size >> 21 & 0x7f), byte(size >> 14 & 0x7f), byte(size >> 7 & 0x7f), byte(size & 0x7f)}

	out := append(header, body.Bytes()...)
	return append(out, make([]byte, 256)...)
}

var sampleTags = [][2]string{
	{"TIT2", "Black Skinhead"},
	{"TPE1", "Kanye West"},
	{"TALB", "Yeezus"},
	{"TRCK", "3/10"},
}

type memObject struct {
	*bytes.Reader
}

func (memObject) Close() error { return nil }

type fakeObjects struct {
	base    string
	objects map[string][]byte
	opened  []string
}

func (f *fakeObjects) KeyFor(locator string) (string, bool) {
	if !strings.HasPrefix(locator, f.base+"/") {
		return "", false
	}
	return strings.TrimPrefix(locator, f.base+"/"), true
}

func (f *fakeObjects) OpenObject(_ context.Context, key string) (io.ReadSeekCloser, error) {
	f.opened = append(f.opened, key)
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return memObject{bytes.NewReader(data)}, nil
}

func TestObjectReader(t *testing.T) {
	objects := &fakeObjects{
		base: "http://minio:9000/music",
		objects: map[string][]byte{
			"Kanye West/Yeezus/03__Black Skinhead.mp3": id3v23(sampleTags),
			"Kanye West/Yeezus/04__silent.mp3":         make([]byte, 512),
		},
	}
	r := NewObjectReader(objects)
	ctx := context.Background()

	t.Run("reads id3 frames", func(t *testing.T) {
		raw, err := r.ReadTags(ctx, "http://minio:9000/music/Kanye West/Yeezus/03__Black Skinhead.mp3")
		require.NoError(t, err)
		require.NotNil(t, raw)
		assert.Equal(t, "Kanye West", raw.Artist)
		assert.Equal(t, "Yeezus", raw.Album)
		assert.Equal(t, "Black Skinhead", raw.Title)
		assert.Equal(t, 3, raw.TrackNumber)
		assert.Nil(t, raw.Image)
	})

	t.Run("no tags is not an error", func(t *testing.T) {
		raw, err := r.ReadTags(ctx, "http://minio:9000/music/Kanye West/Yeezus/04__silent.mp3")
		require.NoError(t, err)
		assert.Nil(t, raw)
	})

	t.Run("locator outside the library", func(t *testing.T) {
		_, err := r.ReadTags(ctx, "http://elsewhere/a.mp3")
		assert.ErrorIs(t, err, ErrUnsupportedLocator)
	})

	t.Run("open failure propagates", func(t *testing.T) {
		_, err := r.ReadTags(ctx, "http://minio:9000/music/missing.mp3")
		assert.Error(t, err)
	})
}

func TestHTTPReader(t *testing.T) {
	payload := id3v23(sampleTags)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone.mp3" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	r := NewHTTPReader(srv.Client())

	raw, err := r.ReadTags(context.Background(), srv.URL+"/song.mp3")
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Equal(t, "Black Skinhead", raw.Title)

	_, err = r.ReadTags(context.Background(), srv.URL+"/gone.mp3")
	assert.Error(t, err)

	_, err = r.ReadTags(context.Background(), "ftp://host/file.mp3")
	assert.ErrorIs(t, err, ErrUnsupportedLocator)

	// 超过上限时报错，不解析被截断的内容
	r.limit = int64(len(payload)) - 1
	_, err = r.ReadTags(context.Background(), srv.URL+"/song.mp3")
	assert.ErrorIs(t, err, ErrTooLarge)

	r.limit = int64(len(payload))
	_, err = r.ReadTags(context.Background(), srv.URL+"/song.mp3")
	assert.NoError(t, err)
}

func TestFileReader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "01__Song.mp3")
	require.NoError(t, os.WriteFile(path, id3v23(sampleTags), 0o644))

	r := NewFileReader(dir)
	assert.True(t, r.Accepts(path))
	assert.True(t, r.Accepts("file://"+path))
	assert.False(t, r.Accepts("/somewhere/else.mp3"))
	assert.False(t, r.Accepts("http://host/a.mp3"))

	raw, err := r.ReadTags(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Equal(t, "Kanye West", raw.Artist)
	assert.Equal(t, 3, raw.TrackNumber)

	_, err = r.ReadTags(context.Background(), "/somewhere/else.mp3")
	assert.ErrorIs(t, err, ErrUnsupportedLocator)
}

func TestSelect(t *testing.T) {
	objects := &fakeObjects{base: "http://minio:9000/music"}

	_, err := Select(ModeNone, Deps{})
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = Select(ModeObject, Deps{})
	assert.Error(t, err)

	r, err := Select("OBJECT", Deps{Objects: objects})
	require.NoError(t, err)
	assert.IsType(t, &ObjectReader{}, r)

	r, err = Select(ModeHTTP, Deps{})
	require.NoError(t, err)
	assert.IsType(t, &HTTPReader{}, r)

	r, err = Select(ModeFile, Deps{})
	require.NoError(t, err)
	assert.IsType(t, &FileReader{}, r)

	r, err = Select("", Deps{Objects: objects})
	require.NoError(t, err)
	assert.IsType(t, &Router{}, r)

	_, err = Select("browser", Deps{})
	assert.Error(t, err)
}

func TestRouter(t *testing.T) {
	objects := &fakeObjects{
		base:    "http://minio:9000/music",
		objects: map[string][]byte{"a/b/01__x.mp3": id3v23(sampleTags)},
	}
	r := NewRouter(Deps{Objects: objects})

	raw, err := r.ReadTags(context.Background(), "http://minio:9000/music/a/b/01__x.mp3")
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Equal(t, []string{"a/b/01__x.mp3"}, objects.opened)

	_, err = r.ReadTags(context.Background(), "relative/path.mp3")
	assert.ErrorIs(t, err, ErrUnsupportedLocator)
}

func TestDataURI(t *testing.T) {
	assert.Empty(t, DataURI("image/png", nil))
	assert.Equal(t, "data:image/png;base64,AQID", DataURI("image/png", []byte{1, 2, 3}))

	png := []byte("\x89PNG\r\n\x1a\n0000")
	assert.True(t, strings.HasPrefix(DataURI("", png), "data:image/png;base64,"))
	assert.True(t, strings.HasPrefix(DataURI("jpg", png), "data:image/png;base64,"))
}
