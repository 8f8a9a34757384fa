package refdata

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// 静态参考表：每次运行加载一次，只读。
// 1. 邮编 -> 时区/偏移（带 4/3/2 位前缀索引，供找不到精确匹配时回退）
// 2. 台标 call_sign -> 电视网/站点元数据

// ZipcodeTimezone 一条邮编时区参考记录
type ZipcodeTimezone struct {
	Zipcode  string
	Timezone string
	TzOffset int // 小时
}

// ZipcodeRef 邮编时区参考表，前缀索引保持文件行序（回退取首个候选，保证确定性）
type ZipcodeRef struct {
	exact    map[string]*ZipcodeTimezone
	byPrefix map[int]map[string][]*ZipcodeTimezone // 前缀长度 4/3/2 -> 前缀 -> 候选
}

// LoadZipcodeRef 读取 zipcode,timezone,tz_offset 格式的CSV（带表头）
func LoadZipcodeRef(path string) (*ZipcodeRef, error) {
	rows, err := readCSV(path)
	if err != nil {
		return nil, fmt.Errorf("读取邮编时区参考表失败: %w", err)
	}

	ref := &ZipcodeRef{
		exact:    make(map[string]*ZipcodeTimezone),
		byPrefix: map[int]map[string][]*ZipcodeTimezone{4: {}, 3: {}, 2: {}},
	}
	for i, row := range rows {
		if len(row) < 3 {
			return nil, fmt.Errorf("邮编时区参考表第%d行列数不足", i+2)
		}
		zipcode, err := NormalizeZipcode(row[0])
		if err != nil {
			return nil, fmt.Errorf("邮编时区参考表第%d行邮编非法: %w", i+2, err)
		}
		offset, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("邮编时区参考表第%d行偏移非法: %w", i+2, err)
		}
		entry := &ZipcodeTimezone{
			Zipcode:  zipcode,
			Timezone: strings.TrimSpace(row[1]),
			TzOffset: int(offset),
		}
		if _, ok := ref.exact[zipcode]; !ok {
			ref.exact[zipcode] = entry
		}
		for _, n := range []int{4, 3, 2} {
			prefix := zipcode[:n]
			ref.byPrefix[n][prefix] = append(ref.byPrefix[n][prefix], entry)
		}
	}
	return ref, nil
}

// Lookup 精确匹配邮编；未命中时依次尝试 4/3/2 位前缀，
// 取首个有候选的前缀长度下的第一条（文件行序），全部未命中返回 nil
func (r *ZipcodeRef) Lookup(zipcode string) *ZipcodeTimezone {
	if e, ok := r.exact[zipcode]; ok {
		return e
	}
	if len(zipcode) < 5 {
		return nil
	}
	for _, n := range []int{4, 3, 2} {
		if candidates := r.byPrefix[n][zipcode[:n]]; len(candidates) > 0 {
			return candidates[0]
		}
	}
	return nil
}

// Station 一条台标参考记录
type Station struct {
	CallSign         string
	StationDMA       string
	StationName      string
	NetworkAffiliate string
}

// CallSignRef 台标参考表，按 call_sign 取首条（参考表偶有重复行）
type CallSignRef struct {
	byCallSign map[string]*Station
}

// LoadCallSignRef 读取 station_type,station_dma,network_affiliate,call_sign,station_name
// 格式的CSV（带表头，列序与 Inscape 站点清单一致）
func LoadCallSignRef(path string) (*CallSignRef, error) {
	rows, err := readCSV(path)
	if err != nil {
		return nil, fmt.Errorf("读取台标参考表失败: %w", err)
	}

	ref := &CallSignRef{byCallSign: make(map[string]*Station)}
	for i, row := range rows {
		if len(row) < 5 {
			return nil, fmt.Errorf("台标参考表第%d行列数不足", i+2)
		}
		callSign := strings.TrimSpace(row[3])
		if callSign == "" {
			continue
		}
		if _, ok := ref.byCallSign[callSign]; ok {
			continue
		}
		ref.byCallSign[callSign] = &Station{
			CallSign:         callSign,
			StationDMA:       strings.TrimSpace(row[1]),
			StationName:      strings.TrimSpace(row[4]),
			NetworkAffiliate: strings.TrimSpace(row[2]),
		}
	}
	return ref, nil
}

// Lookup 按 call_sign 查站点元数据，未命中返回 nil（富化失败非致命）
func (r *CallSignRef) Lookup(callSign string) *Station {
	return r.byCallSign[callSign]
}

// References 两张静态参考表的集合
type References struct {
	Zipcodes  *ZipcodeRef
	CallSigns *CallSignRef
}

// Load 加载全部静态参考表
func Load(zipcodePath, callSignPath string) (*References, error) {
	zipcodes, err := LoadZipcodeRef(zipcodePath)
	if err != nil {
		return nil, err
	}
	callSigns, err := LoadCallSignRef(callSignPath)
	if err != nil {
		return nil, err
	}
	return &References{Zipcodes: zipcodes, CallSigns: callSigns}, nil
}

// NormalizeZipcode 邮编规范化为5位零填充字符串
func NormalizeZipcode(raw string) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("邮编%q无法解析: %w", raw, err)
	}
	return fmt.Sprintf("%05d", n), nil
}

// readCSV 读取带表头CSV，返回数据行
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) <= 1 {
		return nil, nil
	}
	return rows[1:], nil
}
