// Package trackmeta 从对象键文本和内嵌标签推导曲目元数据
//
// 键约定: {baseUrl}/{artist}/{album}/{trackNumber}__{title}.{ext}
// "__" 是字段分隔符，字段内部的单个 "_" 原样保留。
package trackmeta

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"BucketFM/model"
)

const fieldSeparator = "__"

var (
	extPattern    = regexp.MustCompile(`\.[^./]+$`)
	digitsPattern = regexp.MustCompile(`\d+`)
)

// Parse 仅根据定位符文本解析曲目信息，不做任何 I/O，也不会失败
func Parse(locator string) model.ParsedTrack {
	segments := PathSegments(locator)
	n := len(segments)

	filename := segmentAt(segments, n-1)

	var trackNumberText, rawTitle string
	if left, right, found := strings.Cut(filename, fieldSeparator); found {
		// Cut 只切第一个 "__"，后面的 "__" 留在标题里
		trackNumberText, rawTitle = left, right
	} else {
		rawTitle = filename
	}

	return model.ParsedTrack{
		TrackMetadata: model.TrackMetadata{
			Artist:      segmentAt(segments, n-3),
			Album:       segmentAt(segments, n-2),
			Title:       cleanTitle(rawTitle),
			TrackNumber: ParseTrackNumber(trackNumberText),
		},
		AlbumURL:        AlbumURL(locator),
		TrackNumberText: trackNumberText,
	}
}

// ParseTrackNumber 取文本中第一段连续数字，没有或溢出时返回 0
func ParseTrackNumber(text string) int {
	digits := digitsPattern.FindString(text)
	if digits == "" {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// PathSegments 返回定位符路径部分的非空片段（已做百分号解码）
func PathSegments(locator string) []string {
	raw := rawSegments(locator)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		out = append(out, decodeSegment(s))
	}
	return out
}

// AlbumURL 去掉最后一个路径片段（以及 query/fragment），剩余片段少于两个时返回空串
func AlbumURL(locator string) string {
	base := strings.TrimRight(StripQueryAndFragment(locator), "/")
	idx := strings.LastIndex(base, "/")
	if idx < 0 {
		return ""
	}
	parent := base[:idx]
	if len(rawSegments(parent)) < 2 {
		return ""
	}
	return parent
}

// StripQueryAndFragment 去掉 "?" 和 "#" 之后的部分
func StripQueryAndFragment(locator string) string {
	if i := strings.IndexAny(locator, "?#"); i >= 0 {
		return locator[:i]
	}
	return locator
}

// StripExtension 去掉结尾的扩展名
func StripExtension(name string) string {
	return extPattern.ReplaceAllString(name, "")
}

func rawSegments(locator string) []string {
	var path string
	if u, err := url.Parse(locator); err == nil && u.Scheme != "" && u.Host != "" {
		path = u.EscapedPath()
	} else {
		path = StripQueryAndFragment(locator)
	}

	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// decodeSegment 解码失败时返回原始片段
func decodeSegment(s string) string {
	if decoded, err := url.PathUnescape(s); err == nil {
		return decoded
	}
	return s
}

func segmentAt(segments []string, i int) string {
	if i < 0 || i >= len(segments) || segments[i] == "" {
		return model.UnknownField
	}
	return segments[i]
}

func cleanTitle(raw string) string {
	title := strings.TrimSpace(StripExtension(raw))
	if title == "" {
		return model.UnknownField
	}
	return title
}
