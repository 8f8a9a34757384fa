package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"VizioImport/internal/cache"
	"VizioImport/internal/refdata"
	"VizioImport/internal/vizio"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	zipcodeRefCSV = "zipcode,timezone,tz_offset\n" +
		"10001,America/New_York,-5\n" +
		"12340,America/Chicago,-6\n" +
		"90210,America/Los_Angeles,-8\n"
	callSignRefCSV = "station_type,station_dma,network_affiliate,call_sign,station_name\n" +
		"Full Power,New York,NBC,WNBC,WNBC-TV\n" +
		"Full Power,Los Angeles,CBS,KCBS,KCBS-TV\n"
)

func newTestReferences(t *testing.T) *refdata.References {
	t.Helper()
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "zipcode_with_tz.csv")
	require.NoError(t, os.WriteFile(zipPath, []byte(zipcodeRefCSV), 0o644))
	callPath := filepath.Join(dir, "stations.csv")
	require.NoError(t, os.WriteFile(callPath, []byte(callSignRefCSV), 0o644))

	refs, err := refdata.Load(zipPath, callPath)
	require.NoError(t, err)
	return refs
}

func newTestCaches() *cache.Caches {
	return &cache.Caches{
		Activities:   cache.NewActivityCache(),
		Demographics: cache.NewDemographicCache(),
		Locations:    cache.NewKeyCache(),
		Networks:     cache.NewKeyCache(),
		Programs:     cache.NewKeyCache(),
		Times:        cache.NewKeyCache(),
	}
}

// dispatchRecorder 收集 resolver 下发的批次（替代网关）
type dispatchRecorder struct {
	batches map[string][][]interface{}
	columns map[string][]string
}

func newDispatchRecorder() *dispatchRecorder {
	return &dispatchRecorder{
		batches: make(map[string][][]interface{}),
		columns: make(map[string][]string),
	}
}

func (d *dispatchRecorder) dispatch(table string, columns []string, rows [][]interface{}) {
	if len(rows) == 0 {
		return
	}
	d.batches[table] = append(d.batches[table], rows...)
	d.columns[table] = columns
}

func newTestResolver(t *testing.T) (*resolver, *dispatchRecorder) {
	recorder := newDispatchRecorder()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return &resolver{
		caches:   newTestCaches(),
		refs:     newTestReferences(t),
		dispatch: recorder.dispatch,
		logger:   logger,
	}, recorder
}

func strPtr(s string) *string { return &s }

func TestResolveLocationsMintsContiguousIDs(t *testing.T) {
	r, recorder := newTestResolver(t)
	events := []vizio.ViewingEvent{
		{HouseholdID: "hh1", Zipcode: strPtr("10001"), DMA: strPtr("New York")},
		{HouseholdID: "hh2", Zipcode: strPtr("90210"), DMA: strPtr("Los Angeles")},
		{HouseholdID: "hh3", Zipcode: strPtr("10001"), DMA: strPtr("New York")}, // 批内重复
	}
	mapping := r.resolveLocations(events)

	require.Len(t, mapping, 2)
	assert.Equal(t, 1, mapping[cache.LocationKey("10001", strPtr("New York"))])
	assert.Equal(t, 2, mapping[cache.LocationKey("90210", strPtr("Los Angeles"))])

	rows := recorder.batches["vizio_location_dim"]
	require.Len(t, rows, 2)
	// 富化：时区来自邮编参考表
	assert.Equal(t, "America/New_York", rows[0][3])
	assert.Equal(t, -5, rows[0][4])
}

func TestResolveLocationsIsIdempotent(t *testing.T) {
	r, recorder := newTestResolver(t)
	events := []vizio.ViewingEvent{{HouseholdID: "hh1", Zipcode: strPtr("10001"), DMA: strPtr("New York")}}

	first := r.resolveLocations(events)
	second := r.resolveLocations(events)

	// 同一自然键两次解析得到同一代理键，且不再下发新行
	assert.Equal(t, first, second)
	assert.Len(t, recorder.batches["vizio_location_dim"], 1)
}

func TestResolveLocationsEnrichmentMissIsNotFatal(t *testing.T) {
	r, recorder := newTestResolver(t)
	events := []vizio.ViewingEvent{{HouseholdID: "hh1", Zipcode: strPtr("55555"), DMA: strPtr("Nowhere")}}

	mapping := r.resolveLocations(events)
	require.Len(t, mapping, 1)

	rows := recorder.batches["vizio_location_dim"]
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0][3]) // timezone
	assert.Nil(t, rows[0][4]) // tz_offset
}

func TestResolveLocationsPrefixFallback(t *testing.T) {
	r, recorder := newTestResolver(t)
	// 12345 无精确匹配，4位前缀 1234 命中 12340
	events := []vizio.ViewingEvent{{HouseholdID: "hh1", Zipcode: strPtr("12345"), DMA: strPtr("Somewhere")}}
	r.resolveLocations(events)

	rows := recorder.batches["vizio_location_dim"]
	require.Len(t, rows, 1)
	assert.Equal(t, "America/Chicago", rows[0][3])
}

func TestResolveLocationsNullDMAIsDistinctKey(t *testing.T) {
	r, _ := newTestResolver(t)
	withDMA := []vizio.ViewingEvent{{HouseholdID: "hh1", Zipcode: strPtr("10001"), DMA: strPtr("New York")}}
	withoutDMA := []vizio.ViewingEvent{{HouseholdID: "hh1", Zipcode: strPtr("10001"), DMA: nil}}

	m1 := r.resolveLocations(withDMA)
	m2 := r.resolveLocations(withoutDMA)

	id1 := m1[cache.LocationKey("10001", strPtr("New York"))]
	id2 := m2[cache.LocationKey("10001", nil)]
	assert.NotEqual(t, id1, id2)
}

func TestResolveNetworksEnrichment(t *testing.T) {
	r, recorder := newTestResolver(t)
	events := []vizio.ViewingEvent{
		{HouseholdID: "hh1", CallSign: strPtr("WNBC")},
		{HouseholdID: "hh2", CallSign: strPtr("XXXX")}, // 参考表无此台标
	}
	mapping := r.resolveNetworks(events)
	require.Len(t, mapping, 2)

	rows := recorder.batches["vizio_network_dim"]
	require.Len(t, rows, 2)
	assert.Equal(t, "NBC", rows[0][5])
	assert.Equal(t, "WNBC-TV", rows[0][4])
	assert.Nil(t, rows[1][5])
}

func TestResolveProgramsNullComponentsEqualThemselves(t *testing.T) {
	r, recorder := newTestResolver(t)
	start := time.Date(2017, 5, 17, 10, 0, 0, 0, time.UTC)
	events := []vizio.ViewingEvent{
		{HouseholdID: "hh1", TmsID: strPtr("EP1"), ProgramName: strPtr("News"), ProgramStartTime: &start},
		{HouseholdID: "hh2", TmsID: strPtr("EP1"), ProgramName: strPtr("News"), ProgramStartTime: nil},
		{HouseholdID: "hh3", TmsID: strPtr("EP1"), ProgramName: strPtr("News"), ProgramStartTime: nil}, // 与上一行同键
		{HouseholdID: "hh4"}, // 三成分全空：不产生节目键
	}
	mapping := r.resolvePrograms(events)

	assert.Len(t, mapping, 2)
	assert.Len(t, recorder.batches["vizio_program_dim"], 2)
}

func TestResolveTimesFromSplitEvents(t *testing.T) {
	r, recorder := newTestResolver(t)
	s := newTestSplitter()
	split := s.SplitAll([]vizio.ViewingEvent{
		viewingEvent(ts(10, 15, 0), ts(10, 45, 0), 0), // 两个时段
		viewingEvent(ts(10, 35, 0), ts(10, 50, 0), 0), // 第二个时段重复
	})
	mapping := r.resolveTimes(split)

	assert.Len(t, mapping, 2)
	rows := recorder.batches["vizio_time_dim"]
	require.Len(t, rows, 2)
	assert.Equal(t, 21, rows[0][1])
	assert.Equal(t, 22, rows[1][1])
	// 日历属性随行落库
	assert.Equal(t, 3, rows[0][3])  // 周三
	assert.Equal(t, 20, rows[0][4]) // ISO 周
	assert.Equal(t, 2, rows[0][5])  // 季度
}

func TestResolveUniquenessAcrossOverlappingBatches(t *testing.T) {
	r, recorder := newTestResolver(t)
	events := []vizio.ViewingEvent{
		{HouseholdID: "hh1", Zipcode: strPtr("10001"), DMA: strPtr("New York"), CallSign: strPtr("WNBC")},
	}
	r.resolveLocations(events)
	r.resolveNetworks(events)
	// 第二个“文件”带同样的自然键
	r.resolveLocations(events)
	r.resolveNetworks(events)

	assert.Len(t, recorder.batches["vizio_location_dim"], 1)
	assert.Len(t, recorder.batches["vizio_network_dim"], 1)
	assert.Equal(t, 1, r.caches.Locations.Len())
	assert.Equal(t, 1, r.caches.Networks.Len())
}
