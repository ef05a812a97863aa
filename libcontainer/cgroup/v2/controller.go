package v2

import "m-restorer/libcontainer/config"

// cgroup controller 把资源限制翻译成接口文件的内容
type Controller interface {
	// controller 名称，如 cpu、memory
	Name() string

	// 写入的接口文件，如 cpu.max
	File() string

	// 根据资源限制生成要写入的值
	Value(res *config.Resources) string
}

// 所有的 cgroup controller
var Controllers = []Controller{
	CpuController{},
	MemoryController{},
}
