package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"SceneCast/config"
	"SceneCast/logger"
	"SceneCast/model"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var minioClient *minio.Client

// InitMinio 初始化 MinIO 客户端
func InitMinio(cfg *config.Config) error {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	// 检查存储桶是否存在
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("存储桶已创建", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	logger.Info("MinIO 客户端就绪", logger.String("endpoint", cfg.MinioEndpoint))
	return nil
}

// Client 返回底层 MinIO 客户端（诊断命令用）
func Client() *minio.Client {
	return minioClient
}

// ResolveMediaURL 把 minio://bucket/key 形式的媒体引用换成预签名播放地址
// 其它形式的地址视为已解析，原样返回
// 签名有效期覆盖整次播放，引擎在播放期间不会刷新
func ResolveMediaURL(ctx context.Context, ref string, expiry time.Duration) (string, error) {
	if !strings.HasPrefix(ref, "minio://") {
		return ref, nil
	}
	if minioClient == nil {
		return "", fmt.Errorf("MinIO client not initialized")
	}

	rest := strings.TrimPrefix(ref, "minio://")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("非法的媒体引用: %s", ref)
	}

	signed, err := minioClient.PresignedGetObject(ctx, parts[0], parts[1], expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("预签名失败: %w", err)
	}
	return signed.String(), nil
}

// ResolvePresentation 解析演示文稿里的全部媒体引用
// 单个引用解析失败只记警告并保留原值，交给引擎的降级链兜底
func ResolvePresentation(ctx context.Context, p *model.Presentation, expiry time.Duration) {
	resolve := func(ref string) string {
		if ref == "" {
			return ref
		}
		signed, err := ResolveMediaURL(ctx, ref, expiry)
		if err != nil {
			logger.Warn("媒体引用解析失败",
				logger.String("ref", ref),
				logger.ErrorField(err))
			return ref
		}
		return signed
	}

	p.SingleMediaURL = resolve(p.SingleMediaURL)
	for i := range p.Segments {
		seg := &p.Segments[i]
		seg.VideoURL = resolve(seg.VideoURL)
		seg.AudioURL = resolve(seg.AudioURL)
		for j := range seg.ImageURLs {
			seg.ImageURLs[j] = resolve(seg.ImageURLs[j])
		}
	}
}

// StatMediaDuration 读取对象用户元数据里的时长（上传侧写入 duration，单位秒）
// 没有该元数据时返回 (0, nil)
func StatMediaDuration(ctx context.Context, ref string) (float64, error) {
	if minioClient == nil || !strings.HasPrefix(ref, "minio://") {
		return 0, nil
	}

	rest := strings.TrimPrefix(ref, "minio://")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("非法的媒体引用: %s", ref)
	}

	info, err := minioClient.StatObject(ctx, parts[0], parts[1], minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("读取对象元数据失败: %w", err)
	}

	if v, ok := info.UserMetadata["Duration"]; ok {
		var d float64
		if _, err := fmt.Sscanf(v, "%f", &d); err == nil && d > 0 {
			return d, nil
		}
	}
	return 0, nil
}
