package utils

import (
	"time"
)

// DisplayLayout 日志与报告中的时间格式
const DisplayLayout = "2006-01-02 15:04:05"

var (
	// GlobalLocation 全局配置的时区，只影响显示，K线时间戳始终为 UTC 毫秒
	GlobalLocation *time.Location
)

func init() {
	// 默认东8区
	SetLocation("Asia/Shanghai")
}

// SetLocation 设置全局时区
func SetLocation(name string) error {
	if name == "" {
		name = "Asia/Shanghai"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		// 系统缺少时区数据库时的兜底
		if name == "UTC+8" || name == "Asia/Shanghai" {
			GlobalLocation = time.FixedZone("UTC+8", 8*60*60)
			return nil
		}
		if GlobalLocation == nil {
			GlobalLocation = time.UTC
		}
		return err
	}
	GlobalLocation = loc
	return nil
}

// ToConfiguredTimezone 将时间转换为配置的时区
func ToConfiguredTimezone(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.In(GlobalLocation)
}

// FormatTime 按配置时区格式化，零值返回 "-"
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return ToConfiguredTimezone(t).Format(DisplayLayout)
}

// FormatMillis 格式化毫秒时间戳
func FormatMillis(ms int64) string {
	return FormatTime(time.UnixMilli(ms))
}
