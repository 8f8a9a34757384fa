package repository

import (
	"context"
	"testing"

	"VizioImport/internal/cache"
	"VizioImport/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestLoadCachesMirrorsDimensionTables(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewDimensionRepository(db)
	require.NoError(t, repo.EnsureTables(ctx, 2017, 5, 17))

	require.NoError(t, db.Create(&model.ActivityDim{
		ID: 1, HouseholdID: "hh1", LastActiveDate: day(2017, 5, 10)}).Error)
	require.NoError(t, db.Table(model.DemographicTableName(2017, 5)).
		Create(&model.DemographicDim{ID: 1, HouseholdID: "hh1"}).Error)
	require.NoError(t, db.Create(&model.LocationDim{
		ID: 4, Zipcode: "10001", DMA: strPtr("New York")}).Error)
	require.NoError(t, db.Create(&model.NetworkDim{ID: 2, CallSign: "WNBC"}).Error)
	require.NoError(t, db.Create(&model.TimeDim{
		ID: 9, TimeSlot: 21, Date: day(2017, 5, 17), DayOfWeek: 3, Week: 20, Quarter: 2}).Error)

	caches, err := repo.LoadCaches(ctx, 2017, 5)
	require.NoError(t, err)

	entry, ok := caches.Activities.Lookup("hh1")
	require.True(t, ok)
	assert.Equal(t, 1, entry.ID)
	assert.True(t, caches.Demographics.Has(1))

	// 铸键从各表现有最大id继续
	id, ok := caches.Locations.Lookup(cache.LocationKey("10001", strPtr("New York")))
	require.True(t, ok)
	assert.Equal(t, 4, id)
	assert.Equal(t, 5, caches.Locations.NextID())
	assert.Equal(t, 3, caches.Networks.NextID())
	assert.Equal(t, 10, caches.Times.NextID())
	assert.Equal(t, 1, caches.Programs.NextID())
}

func TestLoadCachesScopedToRequestedMonth(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewDimensionRepository(db)
	require.NoError(t, repo.EnsureTables(ctx, 2017, 4, 30))
	require.NoError(t, repo.EnsureTables(ctx, 2017, 5, 17))

	require.NoError(t, db.Create(&model.ActivityDim{
		ID: 1, HouseholdID: "hh1", LastActiveDate: day(2017, 4, 30)}).Error)
	require.NoError(t, db.Table(model.DemographicTableName(2017, 4)).
		Create(&model.DemographicDim{ID: 1, HouseholdID: "hh1"}).Error)

	// 上个月维度表里的 id 不算进当月缓存，身份登记是全局的
	caches, err := repo.LoadCaches(ctx, 2017, 5)
	require.NoError(t, err)
	assert.False(t, caches.Demographics.Has(1))
	_, ok := caches.Activities.Lookup("hh1")
	assert.True(t, ok)
}

func TestUpdateActivityDates(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewDimensionRepository(db)
	require.NoError(t, repo.EnsureTables(ctx, 2017, 5, 17))

	require.NoError(t, db.Create(&model.ActivityDim{
		ID: 1, HouseholdID: "hh1", LastActiveDate: day(2017, 5, 10)}).Error)
	require.NoError(t, db.Create(&model.ActivityDim{
		ID: 2, HouseholdID: "hh2", LastActiveDate: day(2017, 5, 12)}).Error)

	require.NoError(t, repo.UpdateActivityDates(ctx, []ActivityDateUpdate{
		{ID: 1, LastActiveDate: day(2017, 5, 17)},
	}))

	var got model.ActivityDim
	require.NoError(t, db.First(&got, 1).Error)
	assert.Equal(t, day(2017, 5, 17).Format("2006-01-02"), got.LastActiveDate.Format("2006-01-02"))
	got = model.ActivityDim{}
	require.NoError(t, db.First(&got, 2).Error)
	assert.Equal(t, day(2017, 5, 12).Format("2006-01-02"), got.LastActiveDate.Format("2006-01-02"))

	// 空批是无操作
	assert.NoError(t, repo.UpdateActivityDates(ctx, nil))
}
