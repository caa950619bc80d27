package model

// UnknownField 无法解析的字段统一使用的占位文本
const UnknownField = "Unknown"

// TrackMetadata 曲目的展示元数据
// Artist/Album/Title 永远不会是空字符串
type TrackMetadata struct {
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	Title       string `json:"title"`
	TrackNumber int    `json:"trackNumber"`
	Image       string `json:"image,omitempty"` // 封面引用（URL 或 data URI），为空表示没有封面
}

// ParsedTrack 仅从定位符文本解析出的元数据
type ParsedTrack struct {
	TrackMetadata
	AlbumURL        string `json:"albumUrl,omitempty"`        // 专辑前缀定位符，为空表示无法推导
	TrackNumberText string `json:"trackNumberText,omitempty"` // 文件名中 "__" 之前的原始文本
}

// Metadata 返回不带封面的 TrackMetadata
func (p ParsedTrack) Metadata() TrackMetadata {
	m := p.TrackMetadata
	m.Image = ""
	return m
}

// TrackInfo 专辑中的一首曲目
type TrackInfo struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	TrackNum int    `json:"trackNum"`
}

// RawTags 标签读取器返回的原始字段，尚未规范化
type RawTags struct {
	Artist      string
	Album       string
	Title       string
	Track       string // 原始曲目号文本，例如 "05/12"
	TrackNumber int
	Image       any // 任意可字符串化的封面引用
}

// TagFields 规范化后的标签字段，也是缓存中保存的内容
// 空字符串 / 0 表示该字段缺失
type TagFields struct {
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	Title       string `json:"title,omitempty"`
	TrackNumber int    `json:"trackNumber,omitempty"`
	Image       string `json:"image,omitempty"`
}

// Empty 判断是否没有任何可用字段
func (f TagFields) Empty() bool {
	return f.Artist == "" && f.Album == "" && f.Title == "" && f.TrackNumber <= 0 && f.Image == ""
}
