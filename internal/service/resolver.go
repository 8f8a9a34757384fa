package service

import (
	"VizioImport/internal/cache"
	"VizioImport/internal/model"
	"VizioImport/internal/refdata"
	"VizioImport/internal/vizio"

	"github.com/sirupsen/logrus"
)

// dispatchFunc 把一批新维度行交给批量入库网关（异步，文件末尾统一汇合）
type dispatchFunc func(table string, columns []string, rows [][]interface{})

// resolver 单文件内的维度键解析器：
// 批内自然键去重（保留首次出现顺序）-> 对缓存反连接找出新键 -> 参考表富化 ->
// 从 max+1 连续铸代理键 -> 新行交网关 -> 内存扩展缓存 -> 返回自然键到代理键的完整映射。
// 缓存在网关确认前即扩展（乐观写序），失败后的处理见 Importer。
type resolver struct {
	caches   *cache.Caches
	refs     *refdata.References
	dispatch dispatchFunc
	logger   *logrus.Logger
}

// resolveLocations 地域维度：自然键 (zipcode, dma)，邮编缺失的行不产生地域键。
// 时区富化：精确匹配失败依次回退 4/3/2 位前缀，全部未命中留空（非致命）。
func (r *resolver) resolveLocations(events []vizio.ViewingEvent) map[string]int {
	type locKey struct {
		zipcode string
		dma     *string
	}
	var order []locKey
	seen := make(map[string]struct{})
	for _, ev := range events {
		if ev.Zipcode == nil {
			continue
		}
		key := cache.LocationKey(*ev.Zipcode, ev.DMA)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		order = append(order, locKey{zipcode: *ev.Zipcode, dma: ev.DMA})
	}

	mapping := make(map[string]int, len(order))
	columns := []string{"id", "zipcode", "dma", "timezone", "tz_offset"}
	var rows [][]interface{}
	for _, k := range order {
		key := cache.LocationKey(k.zipcode, k.dma)
		if id, ok := r.caches.Locations.Lookup(key); ok {
			mapping[key] = id
			continue
		}
		var timezone, tzOffset interface{}
		if tz := r.refs.Zipcodes.Lookup(k.zipcode); tz != nil {
			timezone = tz.Timezone
			tzOffset = tz.TzOffset
		}
		id := r.caches.Locations.NextID()
		rows = append(rows, []interface{}{id, k.zipcode, ptrValue(k.dma), timezone, tzOffset})
		r.caches.Locations.Extend(key, id)
		mapping[key] = id
	}
	r.dispatch(model.LocationDim{}.TableName(), columns, rows)
	return mapping
}

// resolveNetworks 电视网维度：解析键 call_sign，站点元数据由台标参考表富化（可为空）
func (r *resolver) resolveNetworks(events []vizio.ViewingEvent) map[string]int {
	var order []string
	seen := make(map[string]struct{})
	for _, ev := range events {
		if ev.CallSign == nil {
			continue
		}
		if _, ok := seen[*ev.CallSign]; ok {
			continue
		}
		seen[*ev.CallSign] = struct{}{}
		order = append(order, *ev.CallSign)
	}

	mapping := make(map[string]int, len(order))
	columns := []string{"id", "call_sign", "station_id", "station_dma", "station_name", "network_affiliate"}
	var rows [][]interface{}
	for _, callSign := range order {
		key := cache.NetworkKey(callSign)
		if id, ok := r.caches.Networks.Lookup(key); ok {
			mapping[key] = id
			continue
		}
		var stationDMA, stationName, affiliate interface{}
		if st := r.refs.CallSigns.Lookup(callSign); st != nil {
			stationDMA = st.StationDMA
			stationName = st.StationName
			affiliate = st.NetworkAffiliate
		}
		id := r.caches.Networks.NextID()
		rows = append(rows, []interface{}{id, callSign, nil, stationDMA, stationName, affiliate})
		r.caches.Networks.Extend(key, id)
		mapping[key] = id
	}
	r.dispatch(model.NetworkDim{}.TableName(), columns, rows)
	return mapping
}

// resolvePrograms 节目维度：自然键 (tms_id, program_name, program_start_time)，
// 空值成分视为与自身相等；三个成分全空的行不产生节目键
func (r *resolver) resolvePrograms(events []vizio.ViewingEvent) map[string]int {
	var order []vizio.ViewingEvent
	seen := make(map[string]struct{})
	for _, ev := range events {
		if ev.TmsID == nil && ev.ProgramName == nil && ev.ProgramStartTime == nil {
			continue
		}
		key := cache.ProgramKey(ev.TmsID, ev.ProgramName, ev.ProgramStartTime)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		order = append(order, ev)
	}

	mapping := make(map[string]int, len(order))
	columns := []string{"id", "root_id", "series_id", "tms_id", "program_name", "program_start_time", "program_duration"}
	var rows [][]interface{}
	for _, ev := range order {
		key := cache.ProgramKey(ev.TmsID, ev.ProgramName, ev.ProgramStartTime)
		if id, ok := r.caches.Programs.Lookup(key); ok {
			mapping[key] = id
			continue
		}
		var startTime interface{}
		if ev.ProgramStartTime != nil {
			startTime = *ev.ProgramStartTime
		}
		id := r.caches.Programs.NextID()
		rows = append(rows, []interface{}{id, nil, nil, ptrValue(ev.TmsID), ptrValue(ev.ProgramName), startTime, nil})
		r.caches.Programs.Extend(key, id)
		mapping[key] = id
	}
	r.dispatch(model.ProgramDim{}.TableName(), columns, rows)
	return mapping
}

// resolveTimes 时段维度：自然键 (time_slot, date)，行完全由切分结果的日历推导生成
func (r *resolver) resolveTimes(split []SplitEvent) map[string]int {
	var order []SplitEvent
	seen := make(map[string]struct{})
	for _, ev := range split {
		key := cache.TimeKey(ev.TimeSlot, ev.Date)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		order = append(order, ev)
	}

	mapping := make(map[string]int, len(order))
	columns := []string{"id", "time_slot", "date", "day_of_week", "week", "quarter"}
	var rows [][]interface{}
	for _, ev := range order {
		key := cache.TimeKey(ev.TimeSlot, ev.Date)
		if id, ok := r.caches.Times.Lookup(key); ok {
			mapping[key] = id
			continue
		}
		id := r.caches.Times.NextID()
		rows = append(rows, []interface{}{id, ev.TimeSlot, ev.Date, ev.DayOfWeek, ev.Week, ev.Quarter})
		r.caches.Times.Extend(key, id)
		mapping[key] = id
	}
	r.dispatch(model.TimeDim{}.TableName(), columns, rows)
	return mapping
}

// ptrValue *string 转 interface{}，空指针落库为 NULL
func ptrValue(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
