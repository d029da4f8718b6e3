package model

import "time"

const RecurrenceNone = "none"

// 投票时长选项
var durations = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"10m": 10 * time.Minute,
	"1h":  time.Hour,
	"1d":  24 * time.Hour,
}

// 重复周期选项
var recurrences = map[string]time.Duration{
	"1m": time.Minute,
	"5m": 5 * time.Minute,
	"1h": time.Hour,
	"1d": 24 * time.Hour,
}

// DurationTokens 表单中可选的时长，按展示顺序
var DurationTokens = []string{"1m", "5m", "10m", "1h", "1d"}

// RecurrenceTokens 表单中可选的重复周期，按展示顺序
var RecurrenceTokens = []string{RecurrenceNone, "1m", "5m", "1h", "1d"}

// ParseDuration 把时长标记转换为时间长度，未知标记按1分钟处理
func ParseDuration(token string) time.Duration {
	if d, ok := durations[token]; ok {
		return d
	}
	return time.Minute
}

// DurationToMilliseconds 时长标记对应的毫秒数
func DurationToMilliseconds(token string) int64 {
	return ParseDuration(token).Milliseconds()
}

// ValidDuration 是否为已知时长标记
func ValidDuration(token string) bool {
	_, ok := durations[token]
	return ok
}

// RecurrenceInterval 重复周期长度，none或未知标记返回0
func RecurrenceInterval(token string) time.Duration {
	return recurrences[token]
}

// ValidRecurrence 是否为已知重复标记（包括none）
func ValidRecurrence(token string) bool {
	if token == RecurrenceNone {
		return true
	}
	_, ok := recurrences[token]
	return ok
}

// NextRun 计算下一轮的计划时间，不重复时返回nil
func NextRun(endDate time.Time, recurrence string) *time.Time {
	interval := RecurrenceInterval(recurrence)
	if recurrence == RecurrenceNone || interval == 0 {
		return nil
	}
	next := endDate.Add(interval)
	return &next
}
