package service

import (
	"time"

	"VizioImport/internal/vizio"

	"github.com/sirupsen/logrus"
)

// SplitEvent 对齐半小时边界后的子事件 + 推导的日历属性
type SplitEvent struct {
	vizio.ViewingEvent
	TimeSlot        int       // 1-48，按子事件结束时间取
	Date            time.Time // 结束时间所在日期
	DayOfWeek       int       // ISO 1-7
	Week            int       // ISO 周序号
	Quarter         int       // ceil(month/3)
	ViewingDuration int       // 秒，允许为0
}

// Splitter 把原始的按小时收视区间切成互不重叠的半小时对齐子区间
type Splitter struct {
	logger *logrus.Logger
}

// NewSplitter 创建 Splitter 实例
func NewSplitter(logger *logrus.Logger) *Splitter {
	return &Splitter{logger: logger}
}

// SplitAll 批量切分并推导日历属性
func (s *Splitter) SplitAll(events []vizio.ViewingEvent) []SplitEvent {
	out := make([]SplitEvent, 0, len(events))
	for _, ev := range events {
		for _, sub := range s.Split(ev) {
			out = append(out, derive(sub))
		}
	}
	if s.logger != nil {
		s.logger.Infof("收视区间切分：原始%d行 -> 切分后%d行", len(events), len(out))
	}
	return out
}

// Split 单条事件切分。
// 条件1：同一小时内跨过半点（start_minute < 30 且 end_minute >= 30）。
// 条件2：start_minute > 30 且结束跨入下一小时——Vizio按小时上报，理论上永不触发，
// 触发则按同样的 :00/:30 边界规则切分并告警（输入形态异常）。
// 其余事件原样通过；切分产生的零时长子事件是合法输出，不丢弃。
func (s *Splitter) Split(ev vizio.ViewingEvent) []vizio.ViewingEvent {
	start, end := ev.ViewingStartTime, ev.ViewingEndTime

	condition1 := start.Minute() < 30 && end.Minute() >= 30
	condition2 := start.Minute() > 30 && end.Hour() > start.Hour()
	if !condition1 && !condition2 {
		return []vizio.ViewingEvent{ev}
	}
	if condition2 && s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"viewing_start_time": start.Format("2006-01-02 15:04:05"),
			"viewing_end_time":   end.Format("2006-01-02 15:04:05"),
		}).Warn("收视区间跨整点边界，Vizio按小时上报时不应出现")
	}

	boundary := nextHalfHourBoundary(start)

	first := ev
	first.ViewingEndTime = boundary

	// 后半段起点更靠后，节目内偏移要前移前半段的毫秒数
	second := ev
	second.ViewingStartTime = boundary
	second.ProgramTimeAtStart = ev.ProgramTimeAtStart + boundary.Sub(start).Milliseconds()

	return []vizio.ViewingEvent{first, second}
}

// nextHalfHourBoundary start 之后最近的 :00 或 :30 整点
func nextHalfHourBoundary(start time.Time) time.Time {
	minutes := 30 - start.Minute()
	if start.Minute() >= 30 {
		minutes = 60 - start.Minute()
	}
	return start.Add(time.Duration(minutes)*time.Minute - time.Duration(start.Second())*time.Second)
}

// derive 推导子事件的时段与日历属性。
// 时段按结束时间取；结束恰好落在 :00/:30 整点且时长大于0时，
// 区间 [start, end) 整体在前一个半小时桶内，取前一桶（零时长事件取整点所在桶）
func derive(ev vizio.ViewingEvent) SplitEvent {
	end := ev.ViewingEndTime
	slotRef := end
	onBoundary := end.Minute()%30 == 0 && end.Second() == 0
	if onBoundary && end.After(ev.ViewingStartTime) {
		slotRef = end.Add(-time.Second)
	}
	date := time.Date(slotRef.Year(), slotRef.Month(), slotRef.Day(), 0, 0, 0, 0, slotRef.Location())
	_, week := slotRef.ISOWeek()
	return SplitEvent{
		ViewingEvent:    ev,
		TimeSlot:        TimeSlotOf(slotRef),
		Date:            date,
		DayOfWeek:       isoWeekday(slotRef),
		Week:            week,
		Quarter:         (int(slotRef.Month()) + 2) / 3,
		ViewingDuration: int(end.Sub(ev.ViewingStartTime) / time.Second),
	}
}

// TimeSlotOf 一天48个半小时桶，1起始：00:00:00-00:29:59 为1，23:30:00-23:59:59 为48
func TimeSlotOf(t time.Time) int {
	slot := t.Hour()*2 + 1
	if t.Minute() >= 30 {
		slot++
	}
	return slot
}

// isoWeekday 周一=1 .. 周日=7
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
