package trackmeta

import (
	"fmt"
	"strings"

	"BucketFM/model"
)

// Normalize 规范化标签读取器的原始输出
// 所有字段都缺失时返回 nil（不合并，也不缓存）
func Normalize(raw *model.RawTags) *model.TagFields {
	if raw == nil {
		return nil
	}

	fields := model.TagFields{
		Artist:      strings.TrimSpace(raw.Artist),
		Album:       strings.TrimSpace(raw.Album),
		Title:       strings.TrimSpace(raw.Title),
		TrackNumber: ParseTrackNumber(raw.Track),
		Image:       stringifyImage(raw.Image),
	}
	if fields.TrackNumber == 0 && raw.TrackNumber > 0 {
		fields.TrackNumber = raw.TrackNumber
	}

	if fields.Empty() {
		return nil
	}
	return &fields
}

// Merge 把标签字段合并到兜底元数据上
// 标签值为空或为 "Unknown" 时保留兜底值，曲目号只在大于 0 时覆盖
func Merge(fallback model.TrackMetadata, tags *model.TagFields) model.TrackMetadata {
	out := fallback
	if tags == nil {
		return out
	}
	if usable(tags.Artist) {
		out.Artist = tags.Artist
	}
	if usable(tags.Album) {
		out.Album = tags.Album
	}
	if usable(tags.Title) {
		out.Title = tags.Title
	}
	if tags.TrackNumber > 0 {
		out.TrackNumber = tags.TrackNumber
	}
	if tags.Image != "" {
		out.Image = tags.Image
	}
	return out
}

func usable(v string) bool {
	return v != "" && v != model.UnknownField
}

func stringifyImage(v any) (s string) {
	// 空指针实现 Stringer 时 String() 可能 panic
	defer func() {
		if recover() != nil {
			s = ""
		}
	}()

	switch img := v.(type) {
	case nil:
		return ""
	case string:
		s = img
	case fmt.Stringer:
		s = img.String()
	default:
		s = fmt.Sprint(img)
	}
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}
