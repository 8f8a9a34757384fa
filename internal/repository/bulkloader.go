package repository

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// BulkLoader 批量入库网关：一次调用要么整体落库要么报错。
// rows 的每行与 columns 一一对应，缺失列由调用方先补 nil 占位。
// 生产走 gorm 批量插入；单测用 MemoryBulkLoader 替身。
type BulkLoader interface {
	Load(ctx context.Context, table string, columns []string, rows [][]interface{}) error
}

type gormBulkLoader struct {
	db        *gorm.DB
	batchSize int
}

// NewGormBulkLoader 创建生产用批量入库网关
func NewGormBulkLoader(db *gorm.DB, batchSize int) BulkLoader {
	if batchSize <= 0 {
		batchSize = 2000
	}
	return &gormBulkLoader{db: db, batchSize: batchSize}
}

// Load 整体一个事务分批插入，保证单次调用不出现部分落库
func (l *gormBulkLoader) Load(ctx context.Context, table string, columns []string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	records := make([]map[string]interface{}, 0, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("%s 第%d行有%d列，期望%d列", table, i+1, len(row), len(columns))
		}
		record := make(map[string]interface{}, len(columns))
		for j, col := range columns {
			record[col] = row[j]
		}
		records = append(records, record)
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(records); start += l.batchSize {
			end := start + l.batchSize
			if end > len(records) {
				end = len(records)
			}
			if err := tx.Table(table).Create(records[start:end]).Error; err != nil {
				return fmt.Errorf("批量插入%s失败: %w", table, err)
			}
		}
		return nil
	})
}

// MemoryBulkLoader 内存替身：记录每次调用的行，支持按表注入失败
type MemoryBulkLoader struct {
	mu     sync.Mutex
	Tables map[string][]map[string]interface{}
	Calls  []string
	FailOn map[string]error // 表名 -> 注入的错误
}

// NewMemoryBulkLoader 创建内存替身
func NewMemoryBulkLoader() *MemoryBulkLoader {
	return &MemoryBulkLoader{
		Tables: make(map[string][]map[string]interface{}),
		FailOn: make(map[string]error),
	}
}

func (l *MemoryBulkLoader) Load(_ context.Context, table string, columns []string, rows [][]interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = append(l.Calls, table)
	if err, ok := l.FailOn[table]; ok {
		return err
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("%s 第%d行有%d列，期望%d列", table, i+1, len(row), len(columns))
		}
		record := make(map[string]interface{}, len(columns))
		for j, col := range columns {
			record[col] = row[j]
		}
		l.Tables[table] = append(l.Tables[table], record)
	}
	return nil
}

// Rows 取某表已记录的行（拷贝引用，仅测试用）
func (l *MemoryBulkLoader) Rows(table string) []map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Tables[table]
}
