package service

import (
	"time"

	"VizioImport/internal/model"
	"VizioImport/internal/repository"
	"VizioImport/internal/vizio"
)

// reconcileActivities 身份登记表与当月家庭维度的对账。
// 文件内出现的 household_id 分成三个不相交集合：
//  1. 登记表没有：铸新 id（last_active_date = 数据日期），同时插入登记表和当月家庭维度表；
//  2. 登记表有、当月维度表没有：沿用已有 id 插入当月维度表（不铸新键）；
//  3. 两边都有：登记的 last_active_date 早于数据日期时排队更新（以数据日期为准，最后写入胜）。
//
// 家庭维度按月分表只为控制表大小，id 终身稳定、历史事实永远可连接；
// 登记表是 id 分配的唯一权威，家庭维度表只是它的按月物化子集。
// 返回待执行的日期更新批（由调用方异步下发）。
func (r *resolver) reconcileActivities(
	events []vizio.ViewingEvent,
	dataDate time.Time,
	demographicTable string,
) []repository.ActivityDateUpdate {
	var households []string
	seen := make(map[string]struct{})
	for _, ev := range events {
		if _, ok := seen[ev.HouseholdID]; ok {
			continue
		}
		seen[ev.HouseholdID] = struct{}{}
		households = append(households, ev.HouseholdID)
	}

	activityColumns := []string{"id", "household_id", "last_active_date"}
	demographicColumns := []string{"id", "household_id"}
	var activityRows, demographicRows [][]interface{}
	var updates []repository.ActivityDateUpdate

	for _, householdID := range households {
		entry, known := r.caches.Activities.Lookup(householdID)
		if !known {
			// 集合1：两边都没有
			id := r.caches.Activities.NextID()
			activityRows = append(activityRows, []interface{}{id, householdID, dataDate})
			demographicRows = append(demographicRows, []interface{}{id, householdID})
			r.caches.Activities.Extend(householdID, id, dataDate)
			r.caches.Demographics.Extend(id)
			continue
		}
		if !r.caches.Demographics.Has(entry.ID) {
			// 集合2：登记表有，本月维度表没有
			demographicRows = append(demographicRows, []interface{}{entry.ID, householdID})
			r.caches.Demographics.Extend(entry.ID)
			continue
		}
		// 集合3：两边都有，按数据日期决定是否更新
		if entry.LastActiveDate.Before(dataDate) {
			updates = append(updates, repository.ActivityDateUpdate{ID: entry.ID, LastActiveDate: dataDate})
			r.caches.Activities.Touch(householdID, dataDate)
		}
	}

	r.dispatch(model.ActivityDim{}.TableName(), activityColumns, activityRows)
	r.dispatch(demographicTable, demographicColumns, demographicRows)
	return updates
}
