package cmd

import (
	"context"
	"fmt"
	"log"

	"ZenMix/config"
	"ZenMix/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix    string
	minioRecursive bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶管理",
	Long:  `查看MinIO存储桶中的音频文件，支持按前缀过滤和递归列出目录。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始连接MinIO服务器...")

		cfg := config.Load()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		client, err := storage.New(cfg)
		if err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}
		fmt.Println("MinIO连接成功！")

		fmt.Printf("\n列出存储桶中的文件 (前缀: %s)...\n", minioPrefix)
		var count int
		var total int64
		for info := range client.ListObjects(context.Background(), minioPrefix, minioRecursive) {
			if info.Err != nil {
				log.Fatalf("列出文件失败: %v", info.Err)
			}
			duration := info.UserMetadata["X-Amz-Meta-"+storage.DurationMetaKey]
			if duration == "" {
				fmt.Printf("  %-60s %10d bytes\n", info.Key, info.Size)
			} else {
				fmt.Printf("  %-60s %10d bytes  %ss\n", info.Key, info.Size, duration)
			}
			count++
			total += info.Size
		}
		fmt.Printf("\n共 %d 个文件，%d 字节\n", count, total)
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤文件")
	minioCmd.Flags().BoolVarP(&minioRecursive, "recursive", "r", false, "递归列出目录")

	minioCmd.Example = `  # 列出所有文件
  zenmix minio

  # 列出某个用户的上传
  zenmix minio -p "audio/42/" -r`
}
