package cache

import (
	"fmt"
	"strings"
	"time"
)

// 维度缓存：每次运行启动时从各维度表加载一次“自然键 -> 代理键”镜像，
// 解析新键后只做内存追加（Extend），事实表永不缓存。

const (
	partSep  = "\x1f" // 自然键各成分的分隔符
	nullPart = "\x00" // 空值成分哨兵：空值只与自身相等
)

// ActivityEntry 家庭身份登记缓存条目
type ActivityEntry struct {
	ID             int
	LastActiveDate time.Time
}

// ActivityCache household_id -> 身份条目（id 终身不变，last_active_date 可更新）
type ActivityCache struct {
	byHousehold map[string]*ActivityEntry
	maxID       int
}

func NewActivityCache() *ActivityCache {
	return &ActivityCache{byHousehold: make(map[string]*ActivityEntry)}
}

func (c *ActivityCache) Len() int { return len(c.byHousehold) }

// Lookup 按 household_id 查身份条目
func (c *ActivityCache) Lookup(householdID string) (*ActivityEntry, bool) {
	e, ok := c.byHousehold[householdID]
	return e, ok
}

// NextID 下一个代理键：max(现有)+1，空表从1开始
func (c *ActivityCache) NextID() int { return c.maxID + 1 }

// Extend 内存追加新铸的身份（不回查存储）
func (c *ActivityCache) Extend(householdID string, id int, lastActive time.Time) {
	c.byHousehold[householdID] = &ActivityEntry{ID: id, LastActiveDate: lastActive}
	if id > c.maxID {
		c.maxID = id
	}
}

// Touch 更新已有身份的 last_active_date（以文件数据日期为准）
func (c *ActivityCache) Touch(householdID string, lastActive time.Time) {
	if e, ok := c.byHousehold[householdID]; ok {
		e.LastActiveDate = lastActive
	}
}

// DemographicCache 当月家庭维度的 id 集合（id 来自 ActivityCache，永不在此铸键）
type DemographicCache struct {
	ids map[int]struct{}
}

func NewDemographicCache() *DemographicCache {
	return &DemographicCache{ids: make(map[int]struct{})}
}

func (c *DemographicCache) Len() int { return len(c.ids) }

func (c *DemographicCache) Has(id int) bool {
	_, ok := c.ids[id]
	return ok
}

func (c *DemographicCache) Extend(id int) { c.ids[id] = struct{}{} }

// KeyCache 通用维度缓存：编码后的自然键 -> 代理键
// Location/Network/Program/Time 四个维度共用
type KeyCache struct {
	ids   map[string]int
	maxID int
}

func NewKeyCache() *KeyCache {
	return &KeyCache{ids: make(map[string]int)}
}

func (c *KeyCache) Len() int { return len(c.ids) }

func (c *KeyCache) Lookup(key string) (int, bool) {
	id, ok := c.ids[key]
	return id, ok
}

// NextID 下一个代理键：max(现有)+1，空表从1开始
func (c *KeyCache) NextID() int { return c.maxID + 1 }

func (c *KeyCache) Extend(key string, id int) {
	c.ids[key] = id
	if id > c.maxID {
		c.maxID = id
	}
}

// Caches 一次运行内全部维度缓存（事实表除外）
type Caches struct {
	Activities   *ActivityCache
	Demographics *DemographicCache
	Locations    *KeyCache
	Networks     *KeyCache
	Programs     *KeyCache
	Times        *KeyCache
}

// ---------- 自然键编码 ----------

func part(s *string) string {
	if s == nil {
		return nullPart
	}
	return *s
}

func timePart(t *time.Time) string {
	if t == nil {
		return nullPart
	}
	return t.Format("2006-01-02 15:04:05")
}

// LocationKey 自然键 (zipcode, dma)
func LocationKey(zipcode string, dma *string) string {
	return strings.Join([]string{zipcode, part(dma)}, partSep)
}

// NetworkKey 解析键 call_sign
func NetworkKey(callSign string) string { return callSign }

// ProgramKey 自然键 (tms_id, program_name, program_start_time)，空值成分用哨兵
func ProgramKey(tmsID, programName *string, startTime *time.Time) string {
	return strings.Join([]string{part(tmsID), part(programName), timePart(startTime)}, partSep)
}

// TimeKey 自然键 (time_slot, date)
func TimeKey(timeSlot int, date time.Time) string {
	return fmt.Sprintf("%d%s%s", timeSlot, partSep, date.Format("2006-01-02"))
}
