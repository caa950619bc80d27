package storage

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// PrintStats 打印存储桶统计信息
func PrintStats(w io.Writer, bucket string, objects []ObjectInfo, stats *BucketStats) {
	fmt.Fprintf(w, "\n=== 存储桶统计信息 ===\n")
	fmt.Fprintf(w, "存储桶名称: %s\n", bucket)
	fmt.Fprintf(w, "总大小: %s\n", FormatSize(stats.TotalSize))
	fmt.Fprintf(w, "对象总数: %d\n", stats.TotalObjects)
	if !stats.LastModified.IsZero() {
		fmt.Fprintf(w, "最后修改时间: %s\n", stats.LastModified.Format(time.RFC3339))
	}

	typeStats := make(map[string]int64)
	for _, obj := range objects {
		typeStats[InferContentType(obj.Key)]++
	}
	kinds := make([]string, 0, len(typeStats))
	for kind := range typeStats {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	fmt.Fprintf(w, "\n文件类型统计:\n")
	for _, kind := range kinds {
		fmt.Fprintf(w, "%s: %d 个文件\n", kind, typeStats[kind])
	}
}

// PrintTree 按 艺术家/专辑/曲目 的目录结构打印对象
func PrintTree(w io.Writer, prefix string, objects []ObjectInfo) {
	dirs := make(map[string]bool)
	for _, obj := range objects {
		parts := strings.Split(obj.Key, "/")
		for i := 1; i < len(parts); i++ {
			dirs[strings.Join(parts[:i], "/")] = true
		}
	}

	var sortedDirs []string
	for dir := range dirs {
		if strings.HasPrefix(dir, prefix) || strings.HasPrefix(prefix, dir+"/") {
			sortedDirs = append(sortedDirs, dir)
		}
	}
	sort.Strings(sortedDirs)

	for _, dir := range sortedDirs {
		level := strings.Count(dir, "/")
		indent := strings.Repeat("  ", level)
		fmt.Fprintf(w, "%s📁 %s/\n", indent, dir[strings.LastIndex(dir, "/")+1:])

		for _, obj := range objects {
			rest := strings.TrimPrefix(obj.Key, dir+"/")
			if rest != obj.Key && !strings.Contains(rest, "/") {
				fmt.Fprintf(w, "%s  📄 %s (%s)\n", indent, rest, FormatSize(obj.Size))
			}
		}
	}

	// 根目录下的文件
	for _, obj := range objects {
		if !strings.Contains(obj.Key, "/") {
			fmt.Fprintf(w, "📄 %s (%s)\n", obj.Key, FormatSize(obj.Size))
		}
	}
}

// FormatSize 格式化文件大小
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// InferContentType 从文件名推断内容类型
func InferContentType(filename string) string {
	ext := ""
	if i := strings.LastIndex(filename, "."); i >= 0 {
		ext = strings.ToLower(filename[i:])
	}
	switch ext {
	case ".mp3", ".wav", ".flac", ".m4a", ".ogg", ".opus":
		return "audio"
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return "image"
	default:
		return "other"
	}
}
