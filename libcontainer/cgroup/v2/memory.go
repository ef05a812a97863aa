package v2

import "m-restorer/libcontainer/config"

// memory.max 接受字节数或带单位的值，max 表示不限制
type MemoryController struct{}

func (MemoryController) Name() string { return "memory" }

func (MemoryController) File() string { return "memory.max" }

func (MemoryController) Value(res *config.Resources) string {
	if res.Memory == "" {
		return "max"
	}
	return res.Memory
}
