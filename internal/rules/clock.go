// Package rules 考勤时间规则：时钟时间解析、工作时间窗口、进出顺序校验。
// 本包不做任何 I/O，所有时间都按部署环境的本地墙钟时间比较，不做时区换算。
package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var (
	ErrInvalidClock  = errors.New("时间格式无效，应为 HH:MM 或 HH:MM:SS")
	ErrInvalidDate   = errors.New("日期格式无效，应为 YYYY-MM-DD")
	ErrInvalidWindow = errors.New("工作时间窗口无效")
)

// 与原有接口保持兼容：小时允许一位数字，秒可省略
var clockPattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):([0-5][0-9])(?::([0-5][0-9]))?$`)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// DateLayout 记录日期的存储格式
const DateLayout = "2006-01-02"

// Clock 一天内的墙钟时间，单位为自零点起的秒数
type Clock int

// NewClock 由时分秒构造 Clock
func NewClock(hour, minute, second int) Clock {
	return Clock(hour*3600 + minute*60 + second)
}

// ParseClock 解析 "H:MM"、"HH:MM" 或 "HH:MM:SS"
func ParseClock(s string) (Clock, error) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	// 正则已保证均为数字
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	sec := 0
	if m[3] != "" {
		sec, _ = strconv.Atoi(m[3])
	}
	return NewClock(h, mi, sec), nil
}

// ClockOf 提取 t 的本地墙钟时间
func ClockOf(t time.Time) Clock {
	return NewClock(t.Hour(), t.Minute(), t.Second())
}

func (c Clock) parts() (int, int, int) {
	s := int(c)
	return s / 3600, (s % 3600) / 60, s % 60
}

// HHMM 格式化为 "HH:MM"
func (c Clock) HHMM() string {
	h, m, _ := c.parts()
	return fmt.Sprintf("%02d:%02d", h, m)
}

// String 格式化为 "HH:MM:SS"（存储格式，字典序与时间先后一致）
func (c Clock) String() string {
	h, m, s := c.parts()
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// NormalizeClock 把合法的时钟字符串统一为 "HH:MM:SS"
func NormalizeClock(s string) (string, error) {
	c, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// ValidDate 校验 YYYY-MM-DD 且为真实日历日期
func ValidDate(s string) bool {
	if !datePattern.MatchString(s) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// ValidClock 校验时钟字符串格式
func ValidClock(s string) bool {
	return clockPattern.MatchString(s)
}

// ── 工作时间窗口 ──

// Window 工作时间窗口，两端闭区间；启动时加载后不可变
type Window struct {
	Start Clock
	End   Clock
}

// DefaultWindow 默认 08:00–17:00
var DefaultWindow = Window{Start: NewClock(8, 0, 0), End: NewClock(17, 0, 0)}

// ParseWindow 由配置字符串构造窗口
func ParseWindow(start, end string) (Window, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("%w: start: %v", ErrInvalidWindow, err)
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("%w: end: %v", ErrInvalidWindow, err)
	}
	if e < s {
		return Window{}, fmt.Errorf("%w: end %s 早于 start %s", ErrInvalidWindow, e, s)
	}
	return Window{Start: s, End: e}, nil
}

// Contains 判断 c 是否落在窗口内（含边界）
func (w Window) Contains(c Clock) bool {
	return c >= w.Start && c <= w.End
}

// String 形如 "08:00-17:00"
func (w Window) String() string {
	return w.Start.HHMM() + "-" + w.End.HHMM()
}

// CheckWorkingHours 检查时间是否在工作时间窗口内
func (w Window) CheckWorkingHours(c Clock) Decision {
	switch {
	case c < w.Start:
		return reject(fmt.Sprintf(
			"attendance cannot be registered before %s (requested %s); working hours are %s",
			w.Start.HHMM(), c, w))
	case c > w.End:
		return reject(fmt.Sprintf(
			"attendance cannot be registered after %s (requested %s); working hours are %s",
			w.End.HHMM(), c, w))
	default:
		return accept(fmt.Sprintf("within working hours (%s)", w))
	}
}
