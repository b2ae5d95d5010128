package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteSignalsCSV 每个买入信号一行，未卖出时卖出列为空
func WriteSignalsCSV(result *Result, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建 CSV 文件失败: %w", err)
	}
	defer file.Close()

	sells := make(map[int]int, len(result.Sells))
	for i, s := range result.Sells {
		sells[s.EntryIndex] = i
	}

	w := csv.NewWriter(file)
	if err := w.Write([]string{"buy_time", "entry_index", "entry_price", "target_price", "quantity", "sell_time", "exit_index", "exit_price"}); err != nil {
		return err
	}

	for _, b := range result.Buys {
		row := []string{
			strconv.FormatInt(b.Time, 10),
			strconv.Itoa(b.EntryIndex),
			formatFloat(b.EntryPrice),
			formatFloat(b.TargetPrice),
			formatFloat(b.Quantity),
			"", "", "",
		}
		if i, ok := sells[b.EntryIndex]; ok {
			s := result.Sells[i]
			row[5] = strconv.FormatInt(s.Time, 10)
			row[6] = strconv.Itoa(s.ExitIndex)
			row[7] = formatFloat(s.ExitPrice)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// SaveEquityCurveCSV 保存权益曲线到 CSV
func SaveEquityCurveCSV(result *Result, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建 CSV 文件失败: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"timestamp", "equity"}); err != nil {
		return err
	}
	for _, point := range result.Equity {
		if err := w.Write([]string{strconv.FormatInt(point.Timestamp, 10), fmt.Sprintf("%.8f", point.Equity)}); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}
