package cmd

import (
	"context"
	"fmt"

	"BucketFM/cache"
	"BucketFM/config"
	"BucketFM/core/album"
	"BucketFM/core/library"
	"BucketFM/core/mediactl"
	"BucketFM/core/player"
	"BucketFM/core/tagreader"
	"BucketFM/core/trackmeta"
	"BucketFM/logger"
	"BucketFM/storage"
)

// mprisIdentity 系统媒体控制里显示的播放器名称
const mprisIdentity = "BucketFM"

// app 各命令共用的组件
type app struct {
	cfg      *config.Config
	storage  *storage.Client
	tagStore *cache.TagStore
	deriver  *trackmeta.Deriver
	resolver *album.Resolver
	watcher  *trackmeta.Watcher

	closers []func()
}

// newApp 加载配置并组装核心组件
// MinIO 和 Redis 不可用时降级运行，不返回错误
func newApp() *app {
	cfg := config.Load()
	logger.InitLogger(logger.Config{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogPath,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   true,
	})

	a := &app{cfg: cfg}

	client, err := storage.NewClient(cfg)
	if err != nil {
		logger.Warn("初始化 MinIO 客户端失败，曲库列表不可用", logger.ErrorField(err))
		client = storage.NewLocatorMapper(cfg.LibraryBaseURL)
	}
	a.storage = client

	if cfg.TagCacheTTL > 0 {
		if err := cache.ConnectRedis(cfg); err != nil {
			logger.Warn("连接 Redis 失败，只使用进程内标签缓存", logger.ErrorField(err))
		} else {
			a.tagStore = cache.NewTagStore(cache.RedisClient, cfg.TagCacheTTL)
			a.closers = append(a.closers, func() { _ = cache.CloseRedis() })
		}
	}

	opts := []trackmeta.Option{
		trackmeta.WithReaderResolver(func() (trackmeta.TagReader, error) {
			return tagreader.Select(cfg.TagReaderMode, tagreader.Deps{
				Objects:   a.storage,
				LocalRoot: cfg.LocalLibraryDir,
			})
		}),
	}
	if a.tagStore != nil {
		opts = append(opts, trackmeta.WithTagStore(a.tagStore))
	}
	a.deriver = trackmeta.New(opts...)
	trackmeta.SetDefault(a.deriver)

	a.resolver = album.NewResolver(a.storage)
	return a
}

// watchLocalLibrary 本地曲库文件变化时让对应的标签缓存失效
func (a *app) watchLocalLibrary(ctx context.Context) {
	if a.cfg.LocalLibraryDir == "" {
		return
	}
	w, err := trackmeta.NewWatcher(a.deriver, a.cfg.LocalLibraryDir)
	if err != nil {
		logger.Warn("监听本地曲库失败", logger.String("dir", a.cfg.LocalLibraryDir), logger.ErrorField(err))
		return
	}
	a.watcher = w
	go w.Run(ctx)
	a.closers = append(a.closers, func() { _ = w.Close() })
}

// playback 播放相关组件
type playback struct {
	manager *player.Manager
	queue   *library.Queue
	bridge  *mediactl.Bridge
}

// newPlayback 组装播放管理器、媒体控制和专辑队列
func (a *app) newPlayback(opts ...library.QueueOption) *playback {
	open := library.NewOpener(a.storage, nil)

	var output player.Output
	if a.cfg.AudioEnabled {
		output = player.NewBeepOutput(open)
	} else {
		output = player.NewNullOutput(open)
	}

	preloader := player.NewBeepPreloader(open, player.DefaultPreloadConfig)
	manager := player.NewManager(output,
		player.WithPreloader(preloader),
		player.WithPreloadThreshold(a.cfg.PreloadThreshold))

	var session mediactl.Session
	if a.cfg.MprisEnabled {
		mpris, err := mediactl.NewMPRIS(mprisIdentity)
		if err != nil {
			logger.Warn("MPRIS 不可用，跳过系统媒体控制", logger.ErrorField(err))
		} else {
			session = mpris
			a.closers = append(a.closers, func() { _ = mpris.Close() })
		}
	}
	bridge := mediactl.NewBridge(session)

	opts = append([]library.QueueOption{
		library.WithBridge(bridge),
		library.WithDeriver(a.deriver),
	}, opts...)
	queue := library.NewQueue(manager, a.resolver, opts...)
	unbind := mediactl.Bind(bridge, manager, queue, a.cfg.SeekOffset)

	// 后注册的先关闭
	a.closers = append(a.closers, func() {
		unbind()
		queue.Close()
		bridge.Destroy()
		manager.Destroy()
		preloader.Wait()
	})
	return &playback{manager: manager, queue: queue, bridge: bridge}
}

// Close 按注册的逆序释放资源
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	logger.Sync()
}

// requireStorage 需要真实访问存储桶的命令先检查连接
func (a *app) requireStorage(ctx context.Context) error {
	if err := a.storage.Ping(ctx); err != nil {
		return fmt.Errorf("MinIO 不可用: %w", err)
	}
	return nil
}
