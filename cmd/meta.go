package cmd

import (
	"encoding/json"
	"os"

	"BucketFM/core/trackmeta"

	"github.com/spf13/cobra"
)

var metaSkipTags bool

var metaCmd = &cobra.Command{
	Use:   "meta <locator>...",
	Short: "推导曲目元数据",
	Long:  `根据定位符推导曲目的展示元数据。默认会读取音频标签，标签缺失的字段使用路径中的文本。`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()
		defer a.Close()

		var opts []trackmeta.DeriveOption
		if metaSkipTags {
			opts = append(opts, trackmeta.SkipTags())
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		for _, locator := range args {
			meta := a.deriver.Derive(cmd.Context(), locator, opts...)
			if err := enc.Encode(map[string]any{"locator": locator, "metadata": meta}); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(metaCmd)
	metaCmd.Flags().BoolVar(&metaSkipTags, "skip-tags", false, "只使用定位符文本，不读取标签")
	metaCmd.Example = `  bucketfm meta "http://127.0.0.1:9000/music/Artist/Album/01__Intro.mp3"
  bucketfm meta --skip-tags "Artist/Album/02__Song.flac"`
}
