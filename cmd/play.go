package cmd

import (
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"BucketFM/core/library"
	"BucketFM/core/player"
	"BucketFM/core/trackmeta"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play <locator>",
	Short: "在本机播放专辑",
	Long:  `从指定曲目开始按顺序播放同专辑的曲目，直到专辑结束或收到中断信号。启用 MPRIS 时可以用系统媒体键控制。`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a := newApp()
		defer a.Close()
		a.watchLocalLibrary(ctx)

		done := make(chan struct{})
		var once sync.Once
		pb := a.newPlayback(
			library.OnTrackChange(func(np library.NowPlaying) {
				fmt.Printf("▶ %02d %s - %s (%s)\n",
					np.Metadata.TrackNumber, np.Metadata.Artist, np.Metadata.Title, np.Metadata.Album)
			}),
			library.OnAlbumEnd(func(string) { once.Do(func() { close(done) }) }),
		)

		pb.manager.Subscribe(func(ev player.Event) {
			if ev.Type == player.EventError {
				fmt.Printf("播放出错: %s: %v\n", trackmeta.Parse(ev.Locator).Title, ev.Err)
			}
		})

		if err := pb.queue.Play(ctx, args[0]); err != nil {
			return fmt.Errorf("播放失败: %w", err)
		}

		select {
		case <-done:
			fmt.Println("专辑播放结束")
		case <-ctx.Done():
			fmt.Println("\n已停止")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(playCmd)
}
