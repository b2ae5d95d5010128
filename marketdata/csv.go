package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"smabot/market"
)

var csvHeader = []string{"timestamp", "open", "high", "low", "close", "volume", "symbol"}

// LoadCSV 导入本地 CSV K线文件
//
// 表头 timestamp,open,high,low,close,volume，可选第 7 列 symbol。
// 文件中的K线按时间升序排列，重复时间戳会被去掉。
func LoadCSV(path, symbol, interval string) (*market.Series, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	candles, fileSymbol, err := readCandlesCSV(file)
	if err != nil {
		return nil, fmt.Errorf("读取 %s 失败: %w", path, err)
	}
	if symbol == "" {
		symbol = fileSymbol
	}

	return market.NewSeries(symbol, interval, normalize(candles, 0, 0)), nil
}

// readCandlesCSV 读取 CSV，返回K线和第一行的 symbol（如果有）
func readCandlesCSV(r io.Reader) ([]market.Candle, string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, "", err
	}

	if len(records) < 2 {
		return nil, "", fmt.Errorf("缓存文件为空或格式错误")
	}
	if strings.TrimSpace(strings.ToLower(records[0][0])) != "timestamp" {
		return nil, "", fmt.Errorf("缺少表头: %v", records[0])
	}

	symbol := ""
	candles := make([]market.Candle, 0, len(records)-1)
	for i := 1; i < len(records); i++ {
		candle, sym, err := parseCSVRecord(records[i])
		if err != nil {
			return nil, "", fmt.Errorf("解析第 %d 行失败: %w", i, err)
		}
		if symbol == "" {
			symbol = sym
		}
		candles = append(candles, candle)
	}

	return candles, symbol, nil
}

// parseCSVRecord 解析 CSV 记录
func parseCSVRecord(record []string) (market.Candle, string, error) {
	if len(record) != 6 && len(record) != 7 {
		return market.Candle{}, "", fmt.Errorf("记录字段数量错误: 期望6或7个，实际%d个", len(record))
	}

	timestamp, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	if err != nil {
		return market.Candle{}, "", fmt.Errorf("解析 timestamp 失败: %w", err)
	}

	fields := make([]string, 5)
	for i := range fields {
		fields[i] = strings.TrimSpace(record[i+1])
	}
	candle, err := parseKline(timestamp, fields...)
	if err != nil {
		return market.Candle{}, "", err
	}

	symbol := ""
	if len(record) == 7 {
		symbol = record[6]
	}
	return candle, symbol, nil
}

// writeCandlesCSV 写入 CSV
func writeCandlesCSV(w io.Writer, symbol string, candles []market.Candle) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("写入表头失败: %w", err)
	}

	for _, c := range candles {
		record := []string{
			strconv.FormatInt(c.Timestamp, 10),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
			symbol,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("写入数据失败: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
