package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"BucketFM/core/library"
	"BucketFM/logger"
	"BucketFM/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 BucketFM 服务器",
	Long:  `启动 HTTP 服务器，提供曲目元数据、专辑曲目、曲库列表和播放控制 API，以及 WebSocket 播放事件推送`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp()
	defer a.Close()

	if err := a.requireStorage(ctx); err != nil {
		logger.Warn("存储桶检查失败，曲库相关接口将返回错误", logger.ErrorField(err))
	}
	a.watchLocalLibrary(ctx)

	hub := server.NewHub()
	pb := a.newPlayback(library.OnTrackChange(func(np library.NowPlaying) {
		hub.Broadcast(server.MsgTypeNowPlaying, np)
	}))

	deps := server.Deps{
		Deriver:  a.deriver,
		Resolver: a.resolver,
		Library:  a.storage,
		Queue:    pb.queue,
		Manager:  pb.manager,
		Hub:      hub,
	}
	// 接口类型的 nil 判断
	if a.tagStore != nil {
		deps.TagCache = a.tagStore
	}

	return server.Start(ctx, a.cfg.ServerAddr, server.NewAPIHandler(deps))
}
