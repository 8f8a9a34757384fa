package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"VizioImport/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 运行状态
const (
	RunStatusRunning  = "running"
	RunStatusImported = "imported"
	RunStatusFailed   = "failed"
	RunStatusSkipped  = "skipped"
)

// ImportRunRepository 导入运行记录仓储（每文件一条，统计存 jsonb）
type ImportRunRepository interface {
	Start(ctx context.Context, run *model.ImportRun) error
	Finish(ctx context.Context, runID, status string, stats map[string]int) error
	List(ctx context.Context, limit int) ([]*model.ImportRun, error)
}

type importRunRepository struct {
	db *gorm.DB
}

// NewImportRunRepository 创建 ImportRunRepository 实例
func NewImportRunRepository(db *gorm.DB) ImportRunRepository {
	return &importRunRepository{db: db}
}

func (r *importRunRepository) Start(ctx context.Context, run *model.ImportRun) error {
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("创建运行记录失败: %w", err)
	}
	return nil
}

// Finish 收尾运行记录：状态 + 各表插入行数统计
func (r *importRunRepository) Finish(ctx context.Context, runID, status string, stats map[string]int) error {
	now := time.Now()
	values := map[string]interface{}{
		"status":      status,
		"finished_at": &now,
	}
	if stats != nil {
		raw, err := json.Marshal(stats)
		if err != nil {
			return fmt.Errorf("序列化运行统计失败: %w", err)
		}
		values["stats"] = datatypes.JSON(raw)
	}
	if err := r.db.WithContext(ctx).Model(&model.ImportRun{}).
		Where("run_id = ?", runID).
		Updates(values).Error; err != nil {
		return fmt.Errorf("更新运行记录失败: %w", err)
	}
	return nil
}

func (r *importRunRepository) List(ctx context.Context, limit int) ([]*model.ImportRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var runs []*model.ImportRun
	if err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("列出运行记录失败: %w", err)
	}
	return runs, nil
}
