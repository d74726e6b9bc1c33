// Package cronx 封装标准5字段cron表达式的校验与下次触发时间计算。
// 计算是(表达式,参考时间)上的纯函数,不依赖真实时钟。
package cronx

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// 标准5字段格式: 分 时 日 月 周,支持 * , - */n
var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Validate 校验cron表达式
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Next 计算表达式在after之后的下一次触发时间(严格晚于after)
func Next(expr string, after time.Time) (time.Time, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule.Next(after), nil
}
