package tagreader

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"BucketFM/model"

	"github.com/simonhull/audiometa"
)

// FileReader 读取本地文件的标签
type FileReader struct {
	root string
}

// NewFileReader 创建本地文件读取器，root 为空时接受任意绝对路径
func NewFileReader(root string) *FileReader {
	if root != "" {
		root = filepath.Clean(root)
	}
	return &FileReader{root: root}
}

// Accepts 判断定位符是否是本读取器能处理的本地路径
func (r *FileReader) Accepts(locator string) bool {
	path, ok := localPath(locator)
	if !ok {
		return false
	}
	if r.root == "" {
		return true
	}
	return path == r.root || strings.HasPrefix(path, r.root+string(filepath.Separator))
}

// ReadTags implements Reader.
func (r *FileReader) ReadTags(ctx context.Context, locator string) (*model.RawTags, error) {
	if !r.Accepts(locator) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLocator, locator)
	}
	path, _ := localPath(locator)

	file, err := audiometa.OpenContext(ctx, path)
	if err != nil {
		// 格式未注册或解析失败时退回 dhowden/tag
		return readLocal(path)
	}
	defer file.Close()

	raw := &model.RawTags{
		Artist:      file.Tags.Artist,
		Album:       file.Tags.Album,
		Title:       file.Tags.Title,
		TrackNumber: file.Tags.TrackNumber,
	}
	if raw.Artist == "" {
		raw.Artist = file.Tags.AlbumArtist
	}

	artworks, err := file.ExtractArtwork()
	if err == nil && len(artworks) > 0 {
		if uri := DataURI(artworks[0].MIMEType, artworks[0].Data); uri != "" {
			raw.Image = uri
		}
	}
	return raw, nil
}

// localPath 支持 file:// URL 和绝对路径
func localPath(locator string) (string, bool) {
	if strings.HasPrefix(locator, "file://") {
		u, err := url.Parse(locator)
		if err != nil || u.Path == "" {
			return "", false
		}
		return filepath.Clean(u.Path), true
	}
	if filepath.IsAbs(locator) {
		return filepath.Clean(locator), true
	}
	return "", false
}

func readLocal(path string) (*model.RawTags, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return readFrom(f)
}
