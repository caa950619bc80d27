package cmd

import (
	"fmt"
	"os"

	"BucketFM/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioStats  bool
	minioTree   bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "查看曲库存储桶",
	Long:  `列出曲库存储桶中的文件，支持按前缀过滤、查看统计信息、按目录结构显示。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()
		defer a.Close()

		ctx := cmd.Context()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", a.cfg.MinioEndpoint, a.cfg.MinioBucket)
		if err := a.requireStorage(ctx); err != nil {
			return err
		}

		objects, stats, err := a.storage.ListObjects(ctx, minioPrefix)
		if err != nil {
			return fmt.Errorf("列出文件失败: %w", err)
		}

		switch {
		case minioStats:
			storage.PrintStats(os.Stdout, a.storage.Bucket(), objects, stats)
		case minioTree:
			storage.PrintTree(os.Stdout, minioPrefix, objects)
		default:
			for _, obj := range objects {
				fmt.Printf("%-10s %s\n", storage.FormatSize(obj.Size), a.storage.LocatorFor(obj.Key))
			}
			fmt.Printf("\n共 %d 个文件\n", len(objects))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤文件")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "显示存储桶统计信息")
	minioCmd.Flags().BoolVarP(&minioTree, "tree", "t", false, "按目录结构显示")

	minioCmd.Example = `  # 列出所有文件及其定位符
  bucketfm minio

  # 只看某位艺术家
  bucketfm minio -p "Artist/"

  # 显示存储桶统计信息
  bucketfm minio -s

  # 按目录结构显示
  bucketfm minio -t -p "Artist/"`
}
