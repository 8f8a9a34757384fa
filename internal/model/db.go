package model

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// ViewingFact 收视事实表（按天分表，表名见 ViewingFactTableName）
// location_key/network_key/program_key 允许为空（维度未匹配），demographic_key/time_key 必填
type ViewingFact struct {
	ID                 int       `gorm:"column:id;primaryKey;autoIncrement"`
	DemographicKey     int       `gorm:"column:demographic_key;not null"`
	LocationKey        *int      `gorm:"column:location_key"`
	NetworkKey         *int      `gorm:"column:network_key"`
	ProgramKey         *int      `gorm:"column:program_key"`
	TimeKey            int       `gorm:"column:time_key;not null"`
	ProgramTimeAtStart int64     `gorm:"column:program_time_at_start;not null;comment:节目内偏移，毫秒"`
	ViewingStartTime   time.Time `gorm:"column:viewing_start_time;not null;index"`
	ViewingEndTime     time.Time `gorm:"column:viewing_end_time;not null;index"`
	ViewingDuration    int       `gorm:"column:viewing_duration;not null;comment:收视时长，秒"`
}

// DemographicDim 家庭维度（按月分表，表名见 DemographicTableName）
// id 不自增：永远复用 ActivityDim 里分配的 id，保证跨月稳定
type DemographicDim struct {
	ID          int    `gorm:"column:id;primaryKey;autoIncrement:false"`
	HouseholdID string `gorm:"column:household_id;type:varchar(250);not null"`
}

// ActivityDim 家庭身份登记表（永久表，不分区）
// id 是 DemographicDim id 的唯一来源
type ActivityDim struct {
	ID             int       `gorm:"column:id;primaryKey;autoIncrement"`
	HouseholdID    string    `gorm:"column:household_id;type:varchar(250);not null"`
	LastActiveDate time.Time `gorm:"column:last_active_date;type:date;not null"`
}

// LocationDim 地域维度，自然键 (zipcode, dma)；dma 可为空
type LocationDim struct {
	ID       int     `gorm:"column:id;primaryKey;autoIncrement"`
	Zipcode  string  `gorm:"column:zipcode;type:varchar(10);not null;uniqueIndex:uk_zipcode_dma"`
	DMA      *string `gorm:"column:dma;type:varchar(128);uniqueIndex:uk_zipcode_dma"`
	Timezone *string `gorm:"column:timezone;type:varchar(30)"`
	TzOffset *int    `gorm:"column:tz_offset;comment:小时"`
}

// NetworkDim 电视网维度，解析键为 call_sign，站点元数据来自参考表富化（可为空）
type NetworkDim struct {
	ID               int     `gorm:"column:id;primaryKey;autoIncrement"`
	CallSign         string  `gorm:"column:call_sign;type:varchar(20);not null;uniqueIndex:uk_callsign_affiliate"`
	StationID        *int    `gorm:"column:station_id;comment:tms"`
	StationDMA       *string `gorm:"column:station_dma;type:varchar(128)"`
	StationName      *string `gorm:"column:station_name;type:varchar(250)"`
	NetworkAffiliate *string `gorm:"column:network_affiliate;type:varchar(20);uniqueIndex:uk_callsign_affiliate"`
}

// ProgramDim 节目维度，自然键 (tms_id, program_name, program_start_time)
// program_start_time 允许为空（临时/未排播节目），空值视为与自身相等的键成分
type ProgramDim struct {
	ID               int        `gorm:"column:id;primaryKey;autoIncrement"`
	RootID           *int       `gorm:"column:root_id;comment:tms"`
	SeriesID         *int       `gorm:"column:series_id;comment:tms"`
	TmsID            *string    `gorm:"column:tms_id;type:varchar(250)"`
	ProgramName      *string    `gorm:"column:program_name;type:varchar(250)"`
	ProgramStartTime *time.Time `gorm:"column:program_start_time"`
	ProgramDuration  *int       `gorm:"column:program_duration"`
}

// TimeDim 半小时时段维度，自然键 (time_slot, date)，行完全由日历推导生成
type TimeDim struct {
	ID        int       `gorm:"column:id;primaryKey;autoIncrement"`
	TimeSlot  int       `gorm:"column:time_slot;not null;uniqueIndex:uk_slot_date;comment:1-48"`
	Date      time.Time `gorm:"column:date;type:date;not null;uniqueIndex:uk_slot_date"`
	DayOfWeek int       `gorm:"column:day_of_week;not null;comment:ISO 1-7"`
	Week      int       `gorm:"column:week;not null;comment:ISO周"`
	Quarter   int       `gorm:"column:quarter;not null"`
}

// FileInfo 文件台账：幂等的唯一依据（imported_date 为空即未导入）
type FileInfo struct {
	ID             int        `gorm:"column:id;primaryKey;autoIncrement"`
	FileName       string     `gorm:"column:file_name;type:varchar(250);uniqueIndex;not null"`
	DataDate       *time.Time `gorm:"column:data_date;type:date"`
	DownloadedDate *time.Time `gorm:"column:downloaded_date"`
	ImportedDate   *time.Time `gorm:"column:imported_date"`
	RevisedDate    *time.Time `gorm:"column:revised_date"`
}

// ImportRun 单文件导入运行记录（各表插入行数等统计存 jsonb）
type ImportRun struct {
	ID         uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	RunID      string         `gorm:"column:run_id;type:varchar(64);uniqueIndex;not null"`
	FileName   string         `gorm:"column:file_name;type:varchar(250);not null;index"`
	DataDate   time.Time      `gorm:"column:data_date;type:date;not null"`
	Status     string         `gorm:"column:status;type:varchar(16);default:running;comment:running/imported/failed/skipped"`
	Stats      datatypes.JSON `gorm:"column:stats;type:jsonb"`
	StartedAt  time.Time      `gorm:"column:started_at;type:timestamp;default:CURRENT_TIMESTAMP"`
	FinishedAt *time.Time     `gorm:"column:finished_at;type:timestamp"`
}

func (ActivityDim) TableName() string { return "vizio_activity_dim" }
func (LocationDim) TableName() string { return "vizio_location_dim" }
func (NetworkDim) TableName() string  { return "vizio_network_dim" }
func (ProgramDim) TableName() string  { return "vizio_program_dim" }
func (TimeDim) TableName() string     { return "vizio_time_dim" }
func (FileInfo) TableName() string    { return "vizio_fileinfo" }
func (ImportRun) TableName() string   { return "vizio_import_runs" }

// DemographicTableName 家庭维度按月分表表名
func DemographicTableName(year, month int) string {
	return fmt.Sprintf("vizio_demographic_dim_%04d_%02d", year, month)
}

// ViewingFactTableName 收视事实按天分表表名
func ViewingFactTableName(year, month, day int) string {
	return fmt.Sprintf("vizio_viewing_fact_%04d_%02d_%02d", year, month, day)
}
