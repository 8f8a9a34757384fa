package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"VizioImport/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FileInfoRepository 文件台账仓储：按裸文件名记录下载/导入完成时间，
// imported_date 非空即“已导入”，是幂等判断的唯一依据
type FileInfoRepository interface {
	// Get 按文件名查台账，不存在返回 nil
	Get(ctx context.Context, fileName string) (*model.FileInfo, error)
	// IsImported imported_date 非空即已导入
	IsImported(ctx context.Context, fileName string) (bool, error)
	// MarkDownloaded 记录下载完成时间（不存在则带 data_date 新建）
	MarkDownloaded(ctx context.Context, fileName string, dataDate, downloadedAt time.Time) error
	// MarkImported 记录导入完成时间，导入成功的唯一外部可见信号
	MarkImported(ctx context.Context, fileName string, dataDate, importedAt time.Time) error
	// List 列出台账，pendingOnly 时只返回未导入的
	List(ctx context.Context, pendingOnly bool) ([]*model.FileInfo, error)
}

type fileInfoRepository struct {
	db *gorm.DB
}

// NewFileInfoRepository 创建 FileInfoRepository 实例
func NewFileInfoRepository(db *gorm.DB) FileInfoRepository {
	return &fileInfoRepository{db: db}
}

func (r *fileInfoRepository) Get(ctx context.Context, fileName string) (*model.FileInfo, error) {
	var info model.FileInfo
	err := r.db.WithContext(ctx).Where("file_name = ?", fileName).First(&info).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询文件台账失败: %w", err)
	}
	return &info, nil
}

func (r *fileInfoRepository) IsImported(ctx context.Context, fileName string) (bool, error) {
	info, err := r.Get(ctx, fileName)
	if err != nil {
		return false, err
	}
	return info != nil && info.ImportedDate != nil, nil
}

func (r *fileInfoRepository) MarkDownloaded(ctx context.Context, fileName string, dataDate, downloadedAt time.Time) error {
	return r.upsert(ctx, fileName, dataDate, "downloaded_date", downloadedAt)
}

func (r *fileInfoRepository) MarkImported(ctx context.Context, fileName string, dataDate, importedAt time.Time) error {
	return r.upsert(ctx, fileName, dataDate, "imported_date", importedAt)
}

// upsert 台账不存在则新建，存在则只更新指定时间列
func (r *fileInfoRepository) upsert(ctx context.Context, fileName string, dataDate time.Time, column string, ts time.Time) error {
	info := model.FileInfo{
		FileName: fileName,
		DataDate: &dataDate,
	}
	switch column {
	case "downloaded_date":
		info.DownloadedDate = &ts
	case "imported_date":
		info.ImportedDate = &ts
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_name"}},
		DoUpdates: clause.AssignmentColumns([]string{column}),
	}).Create(&info).Error; err != nil {
		return fmt.Errorf("写入文件台账失败: %w", err)
	}
	return nil
}

func (r *fileInfoRepository) List(ctx context.Context, pendingOnly bool) ([]*model.FileInfo, error) {
	db := r.db.WithContext(ctx).Model(&model.FileInfo{})
	if pendingOnly {
		db = db.Where("imported_date IS NULL")
	}
	var infos []*model.FileInfo
	if err := db.Order("file_name ASC").Find(&infos).Error; err != nil {
		return nil, fmt.Errorf("列出文件台账失败: %w", err)
	}
	return infos, nil
}
