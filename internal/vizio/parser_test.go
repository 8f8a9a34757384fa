package vizio

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLine = "hh1,10001,New York,EP1,Evening News,2017-05-17T09:00:00Z,WNBC,60000," +
	"2017-05-17 10:15:00,2017-05-17 10:45:00\n"

func TestParseFullRecord(t *testing.T) {
	events, err := Parse(strings.NewReader(sampleLine))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "hh1", ev.HouseholdID)
	require.NotNil(t, ev.Zipcode)
	assert.Equal(t, "10001", *ev.Zipcode)
	require.NotNil(t, ev.DMA)
	assert.Equal(t, "New York", *ev.DMA)
	require.NotNil(t, ev.TmsID)
	assert.Equal(t, "EP1", *ev.TmsID)
	require.NotNil(t, ev.CallSign)
	assert.Equal(t, "WNBC", *ev.CallSign)
	assert.Equal(t, int64(60000), ev.ProgramTimeAtStart)
	assert.Equal(t, time.Date(2017, 5, 17, 10, 15, 0, 0, time.UTC), ev.ViewingStartTime)
	assert.Equal(t, time.Date(2017, 5, 17, 10, 45, 0, 0, time.UTC), ev.ViewingEndTime)
}

func TestParseProgramStartTimeStripsMarker(t *testing.T) {
	// 尾部时区标记去掉、T 换成空格后按秒级精度解析
	events, err := Parse(strings.NewReader(sampleLine))
	require.NoError(t, err)
	require.NotNil(t, events[0].ProgramStartTime)
	assert.Equal(t, time.Date(2017, 5, 17, 9, 0, 0, 0, time.UTC), *events[0].ProgramStartTime)
}

func TestParseZipcodePadding(t *testing.T) {
	line := "hh1,501,null,null,null,null,null,0,2017-05-17 10:00:00,2017-05-17 10:10:00\n"
	events, err := Parse(strings.NewReader(line))
	require.NoError(t, err)
	require.NotNil(t, events[0].Zipcode)
	assert.Equal(t, "00501", *events[0].Zipcode)
}

func TestParseNullLiteralsBecomeNil(t *testing.T) {
	line := "hh1,null,,NULL, ,null,null,0,2017-05-17 10:00:00,2017-05-17 10:10:00\n"
	events, err := Parse(strings.NewReader(line))
	require.NoError(t, err)

	ev := events[0]
	assert.Nil(t, ev.Zipcode)
	assert.Nil(t, ev.DMA)
	assert.Nil(t, ev.TmsID)
	assert.Nil(t, ev.ProgramName)
	assert.Nil(t, ev.ProgramStartTime)
	assert.Nil(t, ev.CallSign)
}

func TestParseMissingHouseholdIDIsFatal(t *testing.T) {
	line := "null,10001,New York,null,null,null,null,0,2017-05-17 10:00:00,2017-05-17 10:10:00\n"
	_, err := Parse(strings.NewReader(line))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "household_id")
}

func TestParseNegativeSpanIsFatal(t *testing.T) {
	// 结束早于开始：时长为负，整文件按输入错误拒绝
	line := "hh1,10001,null,null,null,null,null,0,2017-05-17 10:30:00,2017-05-17 10:00:00\n"
	_, err := Parse(strings.NewReader(line))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "viewing_end_time")
}

func TestParseWrongColumnCountIsFatal(t *testing.T) {
	_, err := Parse(strings.NewReader("hh1,10001,New York\n"))
	require.Error(t, err)
}

func TestParseRowErrorNamesLine(t *testing.T) {
	input := sampleLine +
		"hh2,abcde,null,null,null,null,null,0,2017-05-17 10:00:00,2017-05-17 10:10:00\n"
	_, err := Parse(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "第2行")
}

func TestParseTimestampAcceptsTSeparator(t *testing.T) {
	line := "hh1,10001,null,null,null,null,null,0,2017-05-17T10:00:00,2017-05-17T10:10:00\n"
	events, err := Parse(strings.NewReader(line))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2017, 5, 17, 10, 0, 0, 0, time.UTC), events[0].ViewingStartTime)
}

func TestParseZeroDurationIsLegal(t *testing.T) {
	line := "hh1,10001,null,null,null,null,null,0,2017-05-17 10:00:00,2017-05-17 10:00:00\n"
	events, err := Parse(strings.NewReader(line))
	require.NoError(t, err)
	assert.Equal(t, events[0].ViewingStartTime, events[0].ViewingEndTime)
}
