package vizio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"VizioImport/internal/refdata"
)

// Vizio 供应商文件解析：无表头的逗号分隔文本，固定列序。
// 空串与字面量 null 均视为空值；时间戳为秒级精度。

// 供应商固定列序
const (
	colHouseholdID = iota
	colZipcode
	colDMA
	colTmsID
	colProgramName
	colProgramStartTime
	colCallSign
	colProgramTimeAtStart
	colViewingStartTime
	colViewingEndTime
	columnCount
)

const timeLayout = "2006-01-02 15:04:05"

// ViewingEvent 一条原始收视事件（供应商一行）
type ViewingEvent struct {
	HouseholdID        string
	Zipcode            *string // 已规范化为5位零填充
	DMA                *string
	TmsID              *string
	ProgramName        *string
	ProgramStartTime   *time.Time
	CallSign           *string
	ProgramTimeAtStart int64 // 节目内偏移，毫秒
	ViewingStartTime   time.Time
	ViewingEndTime     time.Time
}

// ParseFile 解析一个供应商文件；任何行级错误对当前文件致命
func ParseFile(path string) ([]ViewingEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse 从 reader 解析供应商格式
func Parse(r io.Reader) ([]ViewingEvent, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var events []ViewingEvent
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("第%d行解析失败: %w", line, err)
		}
		if len(record) != columnCount {
			return nil, fmt.Errorf("第%d行列数%d，期望%d", line, len(record), columnCount)
		}
		ev, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("第%d行: %w", line, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseRecord(record []string) (ViewingEvent, error) {
	var ev ViewingEvent

	householdID := nullable(record[colHouseholdID])
	if householdID == nil {
		return ev, fmt.Errorf("household_id 缺失")
	}
	ev.HouseholdID = *householdID

	// zipcode 规范化为5位零填充
	if raw := nullable(record[colZipcode]); raw != nil {
		zipcode, err := refdata.NormalizeZipcode(*raw)
		if err != nil {
			return ev, err
		}
		ev.Zipcode = &zipcode
	}
	ev.DMA = nullable(record[colDMA])
	ev.TmsID = nullable(record[colTmsID])
	ev.ProgramName = nullable(record[colProgramName])

	// program_start_time 带尾部时区标记，去掉并把 T 换为空格后再解析
	if raw := nullable(record[colProgramStartTime]); raw != nil {
		s := *raw
		s = strings.Replace(s[:len(s)-1], "T", " ", 1)
		t, err := time.Parse(timeLayout, s)
		if err != nil {
			return ev, fmt.Errorf("program_start_time %q 无法解析: %w", *raw, err)
		}
		ev.ProgramStartTime = &t
	}
	ev.CallSign = nullable(record[colCallSign])

	offsetRaw := nullable(record[colProgramTimeAtStart])
	if offsetRaw == nil {
		return ev, fmt.Errorf("program_time_at_start 缺失")
	}
	offset, err := strconv.ParseInt(strings.TrimSpace(*offsetRaw), 10, 64)
	if err != nil {
		return ev, fmt.Errorf("program_time_at_start %q 无法解析: %w", *offsetRaw, err)
	}
	ev.ProgramTimeAtStart = offset

	start, err := parseTimestamp(record[colViewingStartTime])
	if err != nil {
		return ev, fmt.Errorf("viewing_start_time: %w", err)
	}
	end, err := parseTimestamp(record[colViewingEndTime])
	if err != nil {
		return ev, fmt.Errorf("viewing_end_time: %w", err)
	}
	// 时长不可为负：结束早于开始视为输入错误
	if end.Before(start) {
		return ev, fmt.Errorf("viewing_end_time %s 早于 viewing_start_time %s", end.Format(timeLayout), start.Format(timeLayout))
	}
	ev.ViewingStartTime = start
	ev.ViewingEndTime = end
	return ev, nil
}

// parseTimestamp 收视时间戳必填，兼容空格与 T 两种日期时间分隔
func parseTimestamp(raw string) (time.Time, error) {
	v := nullable(raw)
	if v == nil {
		return time.Time{}, fmt.Errorf("缺失")
	}
	s := strings.Replace(*v, "T", " ", 1)
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q 无法解析: %w", raw, err)
	}
	return t, nil
}

// nullable 空串与字面量 null 均视为空值
func nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}
