// Package album 根据桶内列表解析当前曲目所在专辑的全部曲目和剩余曲目
package album

import (
	"cmp"
	"context"
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"

	"BucketFM/core/trackmeta"
	"BucketFM/logger"
	"BucketFM/model"
)

// CoverFile 专辑封面文件名，不计入曲目
const CoverFile = "cover.jpeg"

// Lister 列出前缀下的全部对象键
type Lister interface {
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// Resolver 专辑曲目解析器
type Resolver struct {
	lister Lister
}

// NewResolver 创建专辑曲目解析器
func NewResolver(lister Lister) *Resolver {
	return &Resolver{lister: lister}
}

// GetRemainingAlbumTracks 返回排在当前曲目之后的曲目
// 列表失败时返回错误，由调用方决定是否重试；当前曲目无法匹配时返回空列表
func (r *Resolver) GetRemainingAlbumTracks(ctx context.Context, albumURL, current string) ([]model.TrackInfo, error) {
	tracks, err := r.listTracks(ctx, albumURL, current)
	if err != nil {
		return nil, err
	}

	idx := IndexOf(tracks, current)
	if idx < 0 {
		return []model.TrackInfo{}, nil
	}
	return slices.Clone(tracks[idx+1:]), nil
}

// GetAllAlbumTracks 返回专辑全部曲目，失败时记录日志并返回空列表
func (r *Resolver) GetAllAlbumTracks(ctx context.Context, albumURL, current string) []model.TrackInfo {
	tracks, err := r.listTracks(ctx, albumURL, current)
	if err != nil {
		logger.Warn("获取专辑曲目失败",
			logger.String("albumUrl", albumURL),
			logger.String("current", current),
			logger.ErrorField(err))
		return []model.TrackInfo{}
	}
	return tracks
}

// NextTrack 返回当前曲目的下一首，没有时返回 false
func (r *Resolver) NextTrack(ctx context.Context, current string) (model.TrackInfo, bool, error) {
	remaining, err := r.GetRemainingAlbumTracks(ctx, "", current)
	if err != nil || len(remaining) == 0 {
		return model.TrackInfo{}, false, err
	}
	return remaining[0], true, nil
}

// listTracks 列出并排序专辑曲目，艺术家或专辑无法推导时不会调用 Lister
func (r *Resolver) listTracks(ctx context.Context, albumURL, current string) ([]model.TrackInfo, error) {
	segments := trackmeta.PathSegments(current)
	if len(segments) < 3 {
		return []model.TrackInfo{}, nil
	}
	artist, albumName := segments[len(segments)-3], segments[len(segments)-2]

	if albumURL == "" {
		albumURL = trackmeta.AlbumURL(current)
	}
	albumURL = strings.TrimRight(trackmeta.StripQueryAndFragment(albumURL), "/")
	if albumURL == "" {
		return []model.TrackInfo{}, nil
	}

	prefix := artist + "/" + albumName + "/"
	keys, err := r.lister.ListKeys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}

	tracks := make([]model.TrackInfo, 0, len(keys))
	for _, key := range keys {
		filename := path.Base(key)
		if key == "" || strings.HasSuffix(key, "/") || strings.EqualFold(filename, CoverFile) {
			continue
		}
		locator := albumURL + "/" + url.PathEscape(filename)
		parsed := trackmeta.Parse(locator)
		tracks = append(tracks, model.TrackInfo{
			URL:      locator,
			Title:    parsed.Title,
			TrackNum: parsed.TrackNumber,
		})
	}

	slices.SortStableFunc(tracks, func(a, b model.TrackInfo) int {
		return cmp.Compare(a.TrackNum, b.TrackNum)
	})
	return tracks, nil
}
