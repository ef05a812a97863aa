package v2

import (
	"fmt"

	"m-restorer/libcontainer/config"
)

// cpu.max 的格式为 "$QUOTA $PERIOD"，QUOTA 为 max 表示不限制
type CpuController struct{}

func (CpuController) Name() string { return "cpu" }

func (CpuController) File() string { return "cpu.max" }

func (CpuController) Value(res *config.Resources) string {
	period := res.CpuPeriod
	if period == 0 {
		period = config.DefaultCpuPeriod
	}
	if res.CpuQuota == 0 {
		return fmt.Sprintf("max %d", period)
	}
	return fmt.Sprintf("%d %d", res.CpuQuota, period)
}
