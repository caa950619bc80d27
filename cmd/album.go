package cmd

import (
	"fmt"

	"BucketFM/model"

	"github.com/spf13/cobra"
)

var (
	albumRemaining bool
	albumURL       string
)

var albumCmd = &cobra.Command{
	Use:   "album <locator>",
	Short: "列出同专辑的曲目",
	Long:  `按曲目号列出定位符所在专辑的全部曲目，或只列出当前曲目之后的曲目。`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()
		defer a.Close()

		ctx := cmd.Context()
		current := args[0]

		var tracks []model.TrackInfo
		if albumRemaining {
			var err error
			tracks, err = a.resolver.GetRemainingAlbumTracks(ctx, albumURL, current)
			if err != nil {
				return fmt.Errorf("获取剩余曲目失败: %w", err)
			}
		} else {
			tracks = a.resolver.GetAllAlbumTracks(ctx, albumURL, current)
		}

		for _, t := range tracks {
			fmt.Printf("%3d  %-40s %s\n", t.TrackNum, t.Title, t.URL)
		}
		fmt.Printf("\n共 %d 首\n", len(tracks))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(albumCmd)
	albumCmd.Flags().BoolVarP(&albumRemaining, "remaining", "r", false, "只列出当前曲目之后的曲目")
	albumCmd.Flags().StringVar(&albumURL, "album", "", "专辑定位符，默认从当前曲目推导")
}
