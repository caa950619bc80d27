package album

import (
	"net/url"
	"regexp"
	"strings"

	"BucketFM/core/trackmeta"
	"BucketFM/model"
)

var underscoreRun = regexp.MustCompile(`_+`)

// matchStrategy 把文件名规范化后再比较
type matchStrategy struct {
	name      string
	normalize func(string) string
}

// matchStrategies 按顺序尝试，前一个策略命中时不会再尝试后面的
// 新规则追加在末尾，不要调整已有顺序
var matchStrategies = []matchStrategy{
	{"exact", func(s string) string { return s }},
	{"extension-insensitive", trackmeta.StripExtension},
	{"underscore-normalized", func(s string) string {
		return collapseUnderscores(trackmeta.StripExtension(s))
	}},
	{"decode-insensitive", func(s string) string {
		return collapseUnderscores(trackmeta.StripExtension(decode(s)))
	}},
}

// IndexOf 返回 current 在 tracks 中的位置，匹配不到返回 -1
func IndexOf(tracks []model.TrackInfo, current string) int {
	target := filenameOf(current)
	if target == "" {
		return -1
	}
	for _, strategy := range matchStrategies {
		want := strategy.normalize(target)
		for i, t := range tracks {
			if strategy.normalize(filenameOf(t.URL)) == want {
				return i
			}
		}
	}
	return -1
}

// filenameOf 返回定位符最后一个路径片段（未解码）
func filenameOf(locator string) string {
	base := strings.TrimRight(trackmeta.StripQueryAndFragment(locator), "/")
	if i := strings.LastIndex(base, "/"); i >= 0 {
		return base[i+1:]
	}
	return base
}

func collapseUnderscores(s string) string {
	return underscoreRun.ReplaceAllString(s, "_")
}

func decode(s string) string {
	if d, err := url.PathUnescape(s); err == nil {
		return d
	}
	return s
}
