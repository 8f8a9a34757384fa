package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"VizioImport/internal/cache"
	"VizioImport/internal/config"
	"VizioImport/internal/model"
	"VizioImport/internal/refdata"
	"VizioImport/internal/repository"
	"VizioImport/internal/vizio"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var (
	// ErrCacheDirty 网关失败后维度缓存可能超前于存储，重载前拒绝继续导入
	ErrCacheDirty = errors.New("维度缓存可能与存储不一致，重载缓存后再导入")
	// ErrMissingDemographicKey 事实行缺少必填的家庭维度键
	ErrMissingDemographicKey = errors.New("缺少 demographic_key")
)

// ImportOutcome 单文件导入结果
type ImportOutcome string

const (
	OutcomeImported ImportOutcome = "imported" // 本次完成导入
	OutcomeSkipped  ImportOutcome = "skipped"  // 台账已标记导入，幂等跳过
)

// RunSummary 一批文件的导入汇总
type RunSummary struct {
	Files    int `json:"files"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Importer 导入编排器：单文件状态机
// 未导入 -> 解析 -> 维度解析 -> 切分 -> 入库 -> 已导入，任何一步失败进入 Failed。
// 同一 (年,月,日) 同时只允许一个 Importer 实例（单写者，否则铸键竞争破坏单调id）。
type Importer struct {
	cfg      *config.Config
	logger   *logrus.Logger
	dimRepo  repository.DimensionRepository
	fileRepo repository.FileInfoRepository
	runRepo  repository.ImportRunRepository
	loader   repository.BulkLoader
	refs     *refdata.References
	splitter *Splitter

	year, month, day int
	dataDate         time.Time

	caches *cache.Caches
	// dirty：网关失败后置位。缓存是乐观扩展的（入库确认前即写入内存），
	// 失败意味着内存里可能有存储层从未收到的代理键，重载前不可再用
	dirty bool
}

// NewImporter 创建指定数据日期的导入器：建表并整表加载维度缓存
func NewImporter(
	ctx context.Context,
	db *gorm.DB,
	logger *logrus.Logger,
	cfg *config.Config,
	loader repository.BulkLoader,
	refs *refdata.References,
	year, month, day int,
) (*Importer, error) {
	im := &Importer{
		cfg:      cfg,
		logger:   logger,
		dimRepo:  repository.NewDimensionRepository(db),
		fileRepo: repository.NewFileInfoRepository(db),
		runRepo:  repository.NewImportRunRepository(db),
		loader:   loader,
		refs:     refs,
		splitter: NewSplitter(logger),
		year:     year,
		month:    month,
		day:      day,
		dataDate: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC),
	}
	if err := im.dimRepo.EnsureTables(ctx, year, month, day); err != nil {
		return nil, err
	}
	if err := im.ReloadCaches(ctx); err != nil {
		return nil, err
	}
	return im, nil
}

// ReloadCaches 从存储整表重载维度缓存（网关失败后的对账路径）
func (im *Importer) ReloadCaches(ctx context.Context) error {
	caches, err := im.dimRepo.LoadCaches(ctx, im.year, im.month)
	if err != nil {
		return fmt.Errorf("加载维度缓存失败: %w", err)
	}
	im.caches = caches
	im.dirty = false
	return nil
}

// ImportFile 导入单个文件。台账里 imported_date 非空则整体跳过（与内容无关）。
// 失败的文件不标记导入，已下发网关的部分写入不回滚：
// 重试按至少一次语义整文件重跑，缓存正确重载后同样的自然键不会铸出重复代理键。
func (im *Importer) ImportFile(ctx context.Context, path string) (ImportOutcome, error) {
	if im.dirty {
		return "", ErrCacheDirty
	}
	fileName := filepath.Base(path)

	imported, err := im.fileRepo.IsImported(ctx, fileName)
	if err != nil {
		return "", err
	}
	if imported {
		im.logger.Infof("%s 已导入，跳过", fileName)
		return OutcomeSkipped, nil
	}

	im.logger.Infof("开始导入 - %s", path)
	events, err := vizio.ParseFile(path)
	if err != nil {
		// 解析期错误：尚未向网关下发任何写入
		return "", fmt.Errorf("%s 解析失败: %w", fileName, err)
	}

	run := &model.ImportRun{
		RunID:    uuid.NewString(),
		FileName: fileName,
		DataDate: im.dataDate,
	}
	if err := im.runRepo.Start(ctx, run); err != nil {
		return "", err
	}

	stats := make(map[string]int)
	g, gctx := errgroup.WithContext(ctx)
	// 不同目标表之间没有顺序依赖，各表一个入库任务并发执行，
	// 文件末尾统一汇合，首个失败向外抛出
	dispatch := func(table string, columns []string, rows [][]interface{}) {
		if len(rows) == 0 {
			return
		}
		im.logger.Infof("向 %s 插入 %d 行", table, len(rows))
		stats[table] += len(rows)
		g.Go(func() error {
			return im.loader.Load(gctx, table, columns, rows)
		})
	}

	buildErr := im.runPipeline(gctx, g, dispatch, events)
	waitErr := g.Wait()

	if waitErr != nil {
		// 缓存已乐观扩展而存储写入失败：显式置脏，绝不静默带病继续
		im.dirty = true
		im.logger.WithError(waitErr).Errorf(
			"%s 入库失败，维度缓存可能超前于存储，继续导入前必须重载缓存", fileName)
	}
	if buildErr != nil || waitErr != nil {
		_ = im.runRepo.Finish(ctx, run.RunID, repository.RunStatusFailed, stats)
		if buildErr != nil {
			return "", fmt.Errorf("%s 导入失败: %w", fileName, buildErr)
		}
		return "", fmt.Errorf("%s 入库失败: %w", fileName, waitErr)
	}

	// 台账写失败时文件保持未导入，下次运行整文件重跑（键解析幂等）
	if err := im.fileRepo.MarkImported(ctx, fileName, im.dataDate, time.Now()); err != nil {
		_ = im.runRepo.Finish(ctx, run.RunID, repository.RunStatusFailed, stats)
		return "", fmt.Errorf("%s 标记导入失败: %w", fileName, err)
	}
	if err := im.runRepo.Finish(ctx, run.RunID, repository.RunStatusImported, stats); err != nil {
		im.logger.WithError(err).Warnf("%s 更新运行记录失败", fileName)
	}
	im.logger.Infof("完成导入 - %s", path)
	return OutcomeImported, nil
}

// runPipeline 文件内的顺序管线：身份对账 -> 地域 -> 电视网 -> 节目 -> 切分 -> 时段 -> 事实行。
// 时段解析必须在切分之后（依赖切分推导出的日历字段），其余维度先于事实行
func (im *Importer) runPipeline(
	ctx context.Context,
	g *errgroup.Group,
	dispatch dispatchFunc,
	events []vizio.ViewingEvent,
) error {
	r := &resolver{
		caches:   im.caches,
		refs:     im.refs,
		dispatch: dispatch,
		logger:   im.logger,
	}
	demographicTable := model.DemographicTableName(im.year, im.month)

	updates := r.reconcileActivities(events, im.dataDate, demographicTable)
	if len(updates) > 0 {
		im.logger.Infof("更新 %s %d 行", model.ActivityDim{}.TableName(), len(updates))
		g.Go(func() error {
			return im.dimRepo.UpdateActivityDates(ctx, updates)
		})
	}

	locations := r.resolveLocations(events)
	networks := r.resolveNetworks(events)
	programs := r.resolvePrograms(events)

	split := im.splitter.SplitAll(events)
	times := r.resolveTimes(split)

	columns := []string{
		"demographic_key", "location_key", "network_key", "program_key", "time_key",
		"program_time_at_start", "viewing_start_time", "viewing_end_time", "viewing_duration",
	}
	rows := make([][]interface{}, 0, len(split))
	for _, ev := range split {
		entry, ok := im.caches.Activities.Lookup(ev.HouseholdID)
		if !ok {
			// 对账后不应出现；出现说明输入在管线中途被判定非法
			return fmt.Errorf("household_id %q: %w", ev.HouseholdID, ErrMissingDemographicKey)
		}
		timeKey, ok := times[cache.TimeKey(ev.TimeSlot, ev.Date)]
		if !ok {
			return fmt.Errorf("时段 (%d, %s) 未解析出 time_key", ev.TimeSlot, ev.Date.Format("2006-01-02"))
		}

		var locationKey, networkKey, programKey interface{}
		if ev.Zipcode != nil {
			if id, ok := locations[cache.LocationKey(*ev.Zipcode, ev.DMA)]; ok {
				locationKey = id
			}
		}
		if ev.CallSign != nil {
			if id, ok := networks[cache.NetworkKey(*ev.CallSign)]; ok {
				networkKey = id
			}
		}
		if ev.TmsID != nil || ev.ProgramName != nil || ev.ProgramStartTime != nil {
			if id, ok := programs[cache.ProgramKey(ev.TmsID, ev.ProgramName, ev.ProgramStartTime)]; ok {
				programKey = id
			}
		}
		rows = append(rows, []interface{}{
			entry.ID, locationKey, networkKey, programKey, timeKey,
			ev.ProgramTimeAtStart, ev.ViewingStartTime, ev.ViewingEndTime, ev.ViewingDuration,
		})
	}
	dispatch(model.ViewingFactTableName(im.year, im.month, im.day), columns, rows)
	return nil
}

// ImportDir 导入一个日期目录下的全部文件：按文件名排序，_manifest 文件跳过，
// 单个文件失败只终止该文件，整批继续；网关失败后先重载缓存再处理下一个文件
func (im *Importer) ImportDir(ctx context.Context, dir string) (RunSummary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return RunSummary{}, fmt.Errorf("读取目录失败: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.Contains(e.Name(), "_manifest") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	summary := RunSummary{Files: len(files)}
	for _, name := range files {
		outcome, err := im.ImportFile(ctx, filepath.Join(dir, name))
		if err != nil {
			summary.Failed++
			im.logger.WithError(err).Errorf("%s 导入失败，继续下一个文件", name)
			if im.dirty {
				if rerr := im.ReloadCaches(ctx); rerr != nil {
					return summary, fmt.Errorf("重载维度缓存失败，终止本批: %w", rerr)
				}
				im.logger.Info("维度缓存已从存储重载")
			}
			continue
		}
		switch outcome {
		case OutcomeSkipped:
			summary.Skipped++
		default:
			summary.Imported++
		}
	}
	return summary, nil
}
