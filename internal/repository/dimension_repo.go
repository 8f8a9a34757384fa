package repository

import (
	"context"
	"fmt"
	"time"

	"VizioImport/internal/cache"
	"VizioImport/internal/model"

	"gorm.io/gorm"
)

// ActivityDateUpdate 身份登记表 last_active_date 的一条待更新记录
type ActivityDateUpdate struct {
	ID             int
	LastActiveDate time.Time
}

// DimensionRepository 维度表仓储：启动时把自然键->代理键镜像整表加载进内存，
// 以及身份登记表的日期更新。事实表不在此列（只追加，无需回查）。
type DimensionRepository interface {
	// EnsureTables 建出本次运行涉及的分区表与公共表（存在则跳过）
	EnsureTables(ctx context.Context, year, month, day int) error
	// LoadCaches 整表加载全部维度缓存（每次运行一次；网关失败后需重载）
	LoadCaches(ctx context.Context, year, month int) (*cache.Caches, error)
	// UpdateActivityDates 批量更新 last_active_date（以文件数据日期为准）
	UpdateActivityDates(ctx context.Context, updates []ActivityDateUpdate) error
}

type dimensionRepository struct {
	db *gorm.DB
}

// NewDimensionRepository 创建 DimensionRepository 实例
func NewDimensionRepository(db *gorm.DB) DimensionRepository {
	return &dimensionRepository{db: db}
}

// EnsureTables 建表：公共维度表 + 当月家庭维度分表 + 当天事实分表
func (r *dimensionRepository) EnsureTables(ctx context.Context, year, month, day int) error {
	db := r.db.WithContext(ctx)
	if err := db.AutoMigrate(
		&model.ActivityDim{},
		&model.LocationDim{},
		&model.NetworkDim{},
		&model.ProgramDim{},
		&model.TimeDim{},
		&model.FileInfo{},
		&model.ImportRun{},
	); err != nil {
		return fmt.Errorf("公共表结构迁移失败: %w", err)
	}
	if err := db.Table(model.DemographicTableName(year, month)).AutoMigrate(&model.DemographicDim{}); err != nil {
		return fmt.Errorf("家庭维度分表迁移失败: %w", err)
	}
	if err := db.Table(model.ViewingFactTableName(year, month, day)).AutoMigrate(&model.ViewingFact{}); err != nil {
		return fmt.Errorf("事实分表迁移失败: %w", err)
	}
	return nil
}

// LoadCaches 整表加载维度镜像
func (r *dimensionRepository) LoadCaches(ctx context.Context, year, month int) (*cache.Caches, error) {
	caches := &cache.Caches{
		Activities:   cache.NewActivityCache(),
		Demographics: cache.NewDemographicCache(),
		Locations:    cache.NewKeyCache(),
		Networks:     cache.NewKeyCache(),
		Programs:     cache.NewKeyCache(),
		Times:        cache.NewKeyCache(),
	}
	db := r.db.WithContext(ctx)

	var activities []model.ActivityDim
	if err := db.Find(&activities).Error; err != nil {
		return nil, fmt.Errorf("加载身份登记表失败: %w", err)
	}
	for _, a := range activities {
		caches.Activities.Extend(a.HouseholdID, a.ID, a.LastActiveDate)
	}

	var demographics []model.DemographicDim
	if err := db.Table(model.DemographicTableName(year, month)).
		Select("id").Find(&demographics).Error; err != nil {
		return nil, fmt.Errorf("加载家庭维度分表失败: %w", err)
	}
	for _, d := range demographics {
		caches.Demographics.Extend(d.ID)
	}

	var locations []model.LocationDim
	if err := db.Select("id", "zipcode", "dma").Find(&locations).Error; err != nil {
		return nil, fmt.Errorf("加载地域维度失败: %w", err)
	}
	for _, l := range locations {
		caches.Locations.Extend(cache.LocationKey(l.Zipcode, l.DMA), l.ID)
	}

	var networks []model.NetworkDim
	if err := db.Select("id", "call_sign").Find(&networks).Error; err != nil {
		return nil, fmt.Errorf("加载电视网维度失败: %w", err)
	}
	for _, n := range networks {
		caches.Networks.Extend(cache.NetworkKey(n.CallSign), n.ID)
	}

	var programs []model.ProgramDim
	if err := db.Select("id", "tms_id", "program_name", "program_start_time").
		Find(&programs).Error; err != nil {
		return nil, fmt.Errorf("加载节目维度失败: %w", err)
	}
	for _, p := range programs {
		caches.Programs.Extend(cache.ProgramKey(p.TmsID, p.ProgramName, p.ProgramStartTime), p.ID)
	}

	var times []model.TimeDim
	if err := db.Select("id", "time_slot", "date").Find(&times).Error; err != nil {
		return nil, fmt.Errorf("加载时段维度失败: %w", err)
	}
	for _, t := range times {
		caches.Times.Extend(cache.TimeKey(t.TimeSlot, t.Date), t.ID)
	}

	return caches, nil
}

// UpdateActivityDates 按 id 批量更新 last_active_date，整批一个事务
func (r *dimensionRepository) UpdateActivityDates(ctx context.Context, updates []ActivityDateUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			if err := tx.Model(&model.ActivityDim{}).
				Where("id = ?", u.ID).
				Update("last_active_date", u.LastActiveDate).Error; err != nil {
				return fmt.Errorf("更新身份登记 id=%d 失败: %w", u.ID, err)
			}
		}
		return nil
	})
}
