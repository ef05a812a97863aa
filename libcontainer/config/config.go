package config

import "time"

// 容器的运行状态
const (
	StatusCreating = "creating"
	StatusRunning  = "running"
	StatusStopped  = "stopped"
)

// 包含了容器的所有配置信息
type Config struct {
	// 容器的运行状态
	Status string `json:"status"`

	// bootstrap 所处的阶段，由容器内的 init 进程更新
	Phase string `json:"phase"`

	// 容器的进程在宿主机上的 PID
	Pid int `json:"pid"`

	// 容器的唯一标识符
	ID string `json:"ID"`

	// 容器名称
	Name string `json:"name"`

	// 容器所属的函数名称
	Function string `json:"function"`

	// 容器的创建时间
	CreatedTime string `json:"createdTime"`

	// 容器的最长运行时间，超时后容器会被强制终止
	Timeout time.Duration `json:"timeout"`

	// 容器状态目录，/run/m-restorer/[id]
	StateDir string `json:"stateDir"`

	// 容器日志文件路径
	LogPath string `json:"logPath"`

	// 容器内应用的工作目录，路径别名创建在这里
	WorkDir string `json:"workDir"`

	// web 应用监听地址
	Listen string `json:"listen"`

	// 路径别名指向错误目标时的处理策略
	AliasDrift string `json:"aliasDrift"`

	// 持久化存储的挂载配置
	Mounts []Mount `json:"mounts"`

	// cgroup 配置
	Cgroup *Cgroup `json:"cgroup,omitempty"`
}
