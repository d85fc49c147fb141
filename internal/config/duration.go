package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 允许在 YAML/JSON/环境变量中使用 "10s"、"1m" 或纯秒数。
type Duration time.Duration

// UnmarshalText 实现 encoding.TextUnmarshaler。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = 0
		return nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("无效的时长 %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText 实现 encoding.TextMarshaler。
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std 返回标准库时长。
func (d Duration) Std() time.Duration { return time.Duration(d) }
