package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"

	"GeoCheckin/internal/model"
	"GeoCheckin/pkg/errors"
)

// TagRepository 标签查询
type TagRepository struct {
	db *gorm.DB
}

func NewTagRepository(db *gorm.DB) *TagRepository {
	return &TagRepository{db: db}
}

// GetTag 查询标签，不存在时返回 TagNotFound
func (r *TagRepository) GetTag(ctx context.Context, tagID int64) (*model.Tag, error) {
	var tag model.Tag
	err := r.db.WithContext(ctx).Where("id = ?", tagID).First(&tag).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("tag %d: %w", tagID, errors.TagNotFound)
		}
		return nil, fmt.Errorf("failed to get tag %d: %w", tagID, err)
	}
	return &tag, nil
}
