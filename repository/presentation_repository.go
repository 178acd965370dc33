package repository

import (
	"context"
	"errors"
	"fmt"

	"SceneCast/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PresentationRepository 演示文稿清单的持久化接口
type PresentationRepository interface {
	Create(ctx context.Context, rec *model.PresentationRecord) error
	GetByID(ctx context.Context, id int64) (*model.PresentationRecord, error)
	GetByShareSlug(ctx context.Context, slug string) (*model.PresentationRecord, error)
	UpsertBySlug(ctx context.Context, rec *model.PresentationRecord) error
	List(ctx context.Context, limit, offset int) ([]*model.PresentationRecord, error)
	Delete(ctx context.Context, id int64) error
}

// GormPresentationRepository 基于 GORM 的实现
type GormPresentationRepository struct {
	db *gorm.DB
}

// NewGormPresentationRepository 创建演示文稿仓库
func NewGormPresentationRepository(db *gorm.DB) *GormPresentationRepository {
	return &GormPresentationRepository{db: db}
}

// Create 创建演示文稿记录
func (r *GormPresentationRepository) Create(ctx context.Context, rec *model.PresentationRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("创建演示文稿失败: %w", err)
	}
	return nil
}

// GetByID 按主键查询，不存在时返回 (nil, nil)
func (r *GormPresentationRepository) GetByID(ctx context.Context, id int64) (*model.PresentationRecord, error) {
	var rec model.PresentationRecord
	err := r.db.WithContext(ctx).First(&rec, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询演示文稿失败: %w", err)
	}
	return &rec, nil
}

// GetByShareSlug 按分享链接标识查询，不存在时返回 (nil, nil)
// 对应产品里的 "link not found"：调用方据此返回内容不可用
func (r *GormPresentationRepository) GetByShareSlug(ctx context.Context, slug string) (*model.PresentationRecord, error) {
	var rec model.PresentationRecord
	err := r.db.WithContext(ctx).Where("share_slug = ?", slug).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询分享链接失败: %w", err)
	}
	return &rec, nil
}

// UpsertBySlug 按 share_slug 插入或更新（清单热加载用）
func (r *GormPresentationRepository) UpsertBySlug(ctx context.Context, rec *model.PresentationRecord) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "share_slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "single_media_url", "segments", "passcode_hash", "updated_at"}),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("写入演示文稿清单失败: %w", err)
	}
	return nil
}

// List 分页列出演示文稿
func (r *GormPresentationRepository) List(ctx context.Context, limit, offset int) ([]*model.PresentationRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var recs []*model.PresentationRecord
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("列出演示文稿失败: %w", err)
	}
	return recs, nil
}

// Delete 删除演示文稿
func (r *GormPresentationRepository) Delete(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Delete(&model.PresentationRecord{}, id).Error; err != nil {
		return fmt.Errorf("删除演示文稿失败: %w", err)
	}
	return nil
}
