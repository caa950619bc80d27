package cmd

import (
	"context"
	"fmt"
	"time"

	"BucketFM/cache"

	"github.com/spf13/cobra"
)

var redisClearTags bool

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试Redis连接是否成功，可选清空共享的标签缓存。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()
		defer a.Close()

		fmt.Printf("Redis配置: %s, DB: %d\n", a.cfg.RedisAddr(), a.cfg.RedisDB)
		if a.tagStore == nil {
			return fmt.Errorf("Redis 不可用或 TAG_CACHE_TTL=0")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := cache.RedisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("Redis ping 失败: %w", err)
		}
		fmt.Println("Redis连接成功！")

		if redisClearTags {
			n, err := a.tagStore.Clear(ctx)
			if err != nil {
				return fmt.Errorf("清空标签缓存失败: %w", err)
			}
			fmt.Printf("已清空 %d 条标签缓存\n", n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
	redisCmd.Flags().BoolVar(&redisClearTags, "clear-tags", false, "清空共享的标签缓存")
}
