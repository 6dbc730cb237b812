package repositories

import (
	"context"

	"gorm.io/gorm"

	"leadpipeline/internal/models"
)

type PipelineRepository struct {
	db *gorm.DB
}

func (r *PipelineRepository) FindByID(ctx context.Context, id uint) (*models.Pipeline, error) {
	var p models.Pipeline
	if err := r.db.WithContext(ctx).Preload("Stages").First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PipelineRepository) FindBySlug(ctx context.Context, slug string) (*models.Pipeline, error) {
	var p models.Pipeline
	if err := r.db.WithContext(ctx).Preload("Stages").Where("slug = ?", slug).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PipelineRepository) Default(ctx context.Context) (*models.Pipeline, error) {
	var p models.Pipeline
	if err := r.db.WithContext(ctx).Preload("Stages").Where("is_default = ?", true).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PipelineRepository) Create(ctx context.Context, p *models.Pipeline) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// FirstStage returns the stage at position 1 for a pipeline, the entry
// point every newly-routed deal lands on (spec.md §4.6).
func (r *PipelineRepository) FirstStage(ctx context.Context, pipelineID uint) (*models.PipelineStage, error) {
	var stage models.PipelineStage
	err := r.db.WithContext(ctx).
		Where("pipeline_id = ? AND position = ?", pipelineID, 1).
		First(&stage).Error
	if err != nil {
		return nil, err
	}
	return &stage, nil
}

func (r *PipelineRepository) Stage(ctx context.Context, id uint) (*models.PipelineStage, error) {
	var stage models.PipelineStage
	if err := r.db.WithContext(ctx).First(&stage, id).Error; err != nil {
		return nil, err
	}
	return &stage, nil
}

func (r *PipelineRepository) StageByType(ctx context.Context, pipelineID uint, stageType string) (*models.PipelineStage, error) {
	var stage models.PipelineStage
	err := r.db.WithContext(ctx).
		Where("pipeline_id = ? AND stage_type = ?", pipelineID, stageType).
		Order("position ASC").
		First(&stage).Error
	if err != nil {
		return nil, err
	}
	return &stage, nil
}
