package cmd

import (
	"context"
	"fmt"
	"log"

	"SceneCast/config"
	"SceneCast/storage"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioSign   string
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶诊断",
	Long:  `查看MinIO存储桶中的媒体文件，支持按前缀列出对象、为单个媒体引用生成预签名播放地址。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始连接MinIO服务器...")

		// 加载配置
		cfg := config.Load()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		// 初始化MinIO客户端
		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}
		fmt.Println("MinIO连接成功！")

		ctx := context.Background()

		if minioSign != "" {
			// 生成预签名播放地址
			signed, err := storage.ResolveMediaURL(ctx, minioSign, cfg.PresignExpiry)
			if err != nil {
				log.Fatalf("预签名失败: %v", err)
			}
			fmt.Printf("\n预签名地址:\n%s\n", signed)
			return
		}

		// 按前缀列出对象
		fmt.Printf("\n列出存储桶中的文件 (前缀: %s)...\n", minioPrefix)
		client := storage.Client()
		count := 0
		var total int64
		for obj := range client.ListObjects(ctx, cfg.MinioBucket, minio.ListObjectsOptions{
			Prefix:    minioPrefix,
			Recursive: true,
		}) {
			if obj.Err != nil {
				log.Fatalf("列出文件失败: %v", obj.Err)
			}
			fmt.Printf("  %s (%d bytes)\n", obj.Key, obj.Size)
			count++
			total += obj.Size
		}
		fmt.Printf("\n共 %d 个对象，总大小 %d bytes\n", count, total)
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤文件")
	minioCmd.Flags().StringVarP(&minioSign, "sign", "s", "", "为 minio://bucket/key 形式的引用生成预签名地址")

	minioCmd.Example = `  # 列出所有文件
  scenecast_server minio

  # 按前缀过滤文件
  scenecast_server minio -p "videos/"

  # 为媒体引用生成预签名播放地址
  scenecast_server minio -s "minio://scenecast/videos/intro.mp4"`
}
