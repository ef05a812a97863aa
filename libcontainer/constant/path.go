package constant

const (
	// cgroupV2 在宿主机上的统一挂载点
	CgroupV2UnifiedMountPoint = "/sys/fs/cgroup"

	// m-restorer 的 cgroup 根目录
	CgroupRootPath = "/sys/fs/cgroup/m-restorer.slice"

	// 容器 Config 文件名
	ConfigName = "config.json"

	// 容器日志文件名
	LogFileName = "container.log"

	// 默认的函数描述文件
	DefaultDescriptorPath = "/etc/m-restorer/function.ini"

	// NVIDIA 驱动暴露 GPU 型号信息的目录
	NvidiaProcPath = "/proc/driver/nvidia/gpus"
)

// 以下路径在测试中会被替换为临时目录，因此使用 var
var (
	// m-restorer 数据的根目录
	RootPath = "/var/lib/m-restorer"

	// m-restorer 状态信息的根目录
	StatePath = "/run/m-restorer"

	// 设备节点目录，用于探测 GPU
	DevPath = "/dev"
)
