package trackmeta

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"BucketFM/logger"

	"github.com/fsnotify/fsnotify"
)

// Watcher 监听本地曲库目录，文件变化时让对应的标签缓存失效
type Watcher struct {
	deriver *Deriver
	root    string
	fsw     *fsnotify.Watcher
}

// NewWatcher 递归监听 root 下的所有目录
func NewWatcher(d *Deriver, root string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{deriver: d, root: root, fsw: fsw}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// Run 处理文件事件直到 ctx 结束
func (w *Watcher) Run(ctx context.Context) {
	logger.Info("本地曲库监听启动", logger.String("root", w.root))
	defer logger.Info("本地曲库监听停止", logger.String("root", w.root))

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("曲库监听出错", logger.ErrorField(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				logger.Warn("监听新目录失败", logger.String("path", event.Name), logger.ErrorField(err))
			}
			return
		}
	}

	if event.Has(fsnotify.Write) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Create) {
		for _, locator := range fileLocators(event.Name) {
			w.deriver.Forget(locator)
		}
		logger.Debug("标签缓存失效", logger.String("path", event.Name), logger.String("op", event.Op.String()))
	}
}

// fileLocators 同一个本地文件可能以路径或 file:// URL 的形式作为定位符
func fileLocators(path string) []string {
	escaped := (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
	raw := "file://" + filepath.ToSlash(path)
	if escaped == raw {
		return []string{path, raw}
	}
	return []string{path, raw, escaped}
}

// Close 停止监听
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
