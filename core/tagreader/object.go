package tagreader

import (
	"context"
	"errors"
	"fmt"
	"io"

	"BucketFM/model"

	"github.com/dhowden/tag"
)

// ObjectReader 从对象存储读取曲库内文件的标签
type ObjectReader struct {
	objects ObjectSource
}

// NewObjectReader 创建对象存储读取器
func NewObjectReader(objects ObjectSource) *ObjectReader {
	return &ObjectReader{objects: objects}
}

// ReadTags implements Reader.
func (r *ObjectReader) ReadTags(ctx context.Context, locator string) (*model.RawTags, error) {
	key, ok := r.objects.KeyFor(locator)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLocator, locator)
	}

	object, err := r.objects.OpenObject(ctx, key)
	if err != nil {
		return nil, err
	}
	defer object.Close()

	return readFrom(object)
}

// readFrom 用 dhowden/tag 解析标签，文件没有标签时返回 nil, nil
func readFrom(rs io.ReadSeeker) (*model.RawTags, error) {
	md, err := tag.ReadFrom(rs)
	if errors.Is(err, tag.ErrNoTagsFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tags: %w", err)
	}

	track, _ := md.Track()
	raw := &model.RawTags{
		Artist:      md.Artist(),
		Album:       md.Album(),
		Title:       md.Title(),
		TrackNumber: track,
	}
	if raw.Artist == "" {
		raw.Artist = md.AlbumArtist()
	}
	if pic := md.Picture(); pic != nil {
		if uri := DataURI(pic.MIMEType, pic.Data); uri != "" {
			raw.Image = uri
		}
	}
	return raw, nil
}
