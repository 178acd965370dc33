package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"SceneCast/core/auth"
	"SceneCast/logger"
	"SceneCast/model"
	"SceneCast/repository"

	"gopkg.in/yaml.v3"
)

// Manifest 演示文稿清单文件，每个 yaml 描述一份演示文稿
type Manifest struct {
	Title          string          `yaml:"title"`
	ShareSlug      string          `yaml:"shareSlug"`
	SingleMediaURL string          `yaml:"singleMediaUrl"`
	Passcode       string          `yaml:"passcode"`
	Segments       []model.Segment `yaml:"segments"`
}

// Library 把清单目录同步进数据库
type Library struct {
	repo repository.PresentationRepository
}

func NewLibrary(repo repository.PresentationRepository) *Library {
	return &Library{repo: repo}
}

// LoadFile 解析单个清单并按 share_slug 落库（已存在则覆盖）
func (l *Library) LoadFile(ctx context.Context, path string) (*model.PresentationRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取清单失败: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("解析清单失败 %s: %w", filepath.Base(path), err)
	}

	if m.ShareSlug == "" {
		// 缺省用文件名做分享标识
		m.ShareSlug = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if m.Title == "" {
		m.Title = m.ShareSlug
	}

	rec := &model.PresentationRecord{
		Title:          m.Title,
		ShareSlug:      m.ShareSlug,
		SingleMediaURL: m.SingleMediaURL,
		Segments:       model.SegmentList(m.Segments),
	}

	// 清单允许明文口令，落库前转哈希
	if m.Passcode != "" {
		hash, err := auth.HashPasscode(m.Passcode)
		if err != nil {
			return nil, fmt.Errorf("处理口令失败: %w", err)
		}
		rec.PasscodeHash = hash
	}

	// 落库前先校验能产出合法的播放计划
	if err := rec.ToPresentation().Validate(); err != nil {
		return nil, fmt.Errorf("清单 %s 无法播放: %w", filepath.Base(path), err)
	}

	if err := l.repo.UpsertBySlug(ctx, rec); err != nil {
		return nil, err
	}

	logger.Info("清单已入库",
		logger.String("slug", rec.ShareSlug),
		logger.Int("segments", len(rec.Segments)))
	return rec, nil
}

// LoadDir 加载目录下全部 yaml 清单，单个失败不影响其它
func (l *Library) LoadDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("读取清单目录失败: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !isManifest(entry.Name()) {
			continue
		}
		if _, err := l.LoadFile(ctx, filepath.Join(dir, entry.Name())); err != nil {
			logger.Warn("清单加载失败",
				logger.String("file", entry.Name()),
				logger.ErrorField(err))
			continue
		}
		loaded++
	}
	return loaded, nil
}

func isManifest(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
