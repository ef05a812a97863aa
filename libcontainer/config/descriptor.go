package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/gookit/ini/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// 路径别名漂移（别名存在但指向错误目标）的处理策略
const (
	AliasDriftFail     = "fail"
	AliasDriftTolerate = "tolerate"
)

// GPU 需求
const (
	GPUNone = "none"
	GPUAny  = "any"
)

// 默认的部署配置
const (
	DefaultFunctionName  = "motasaith-ai-restorer"
	DefaultStoreName     = "motasaith-restorer-volume"
	DefaultMountPoint    = "/data"
	DefaultTimeout       = 600 * time.Second
	DefaultMaxContainers = 1
	DefaultWorkDir       = "/root"
	DefaultListen        = "0.0.0.0:8000"

	// CPU 硬限制的默认调度周期，单位 us
	DefaultCpuPeriod = 100000
)

// Descriptor 描述了函数容器运行时的资源包络
// 它是静态配置，运行期间不会改变
type Descriptor struct {
	// 函数名称
	Name string

	// GPU 需求：none、any 或者具体的 GPU 型号
	GPU string

	// 单个容器的最长运行时间
	Timeout time.Duration

	// 同时存活的容器数量上限
	MaxContainers int

	// volume 挂载，第一个挂载点是路径别名的目标
	Volumes []Mount

	// volume 不存在时是否自动创建
	CreateIfMissing bool

	// 容器内应用的工作目录
	WorkDir string

	// web 应用监听地址
	Listen string

	// 路径别名漂移策略
	AliasDrift string

	// 可选的 cgroup 资源限制
	Resources *Resources
}

// 返回与部署环境一致的默认 Descriptor
func DefaultDescriptor() *Descriptor {
	return &Descriptor{
		Name:          DefaultFunctionName,
		GPU:           GPUAny,
		Timeout:       DefaultTimeout,
		MaxContainers: DefaultMaxContainers,
		Volumes: []Mount{
			{Store: DefaultStoreName, Destination: DefaultMountPoint},
		},
		CreateIfMissing: true,
		WorkDir:         DefaultWorkDir,
		Listen:          DefaultListen,
		AliasDrift:      AliasDriftFail,
		Resources:       &Resources{CpuPeriod: DefaultCpuPeriod},
	}
}

// 从 ini 文件中加载 Descriptor，文件中未出现的字段使用默认值
//
//	[function]
//	name = motasaith-ai-restorer
//	gpu = any
//	timeout = 600s
//	max_containers = 1
//	volumes = motasaith-restorer-volume:/data
func LoadDescriptor(path string) (*Descriptor, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "failed to stat descriptor %s", path)
	}

	cfg := ini.New()
	if err := cfg.LoadFiles(path); err != nil {
		return nil, errors.Wrapf(err, "failed to parse descriptor %s", path)
	}

	d := DefaultDescriptor()
	d.Name = cfg.String("function.name", d.Name)
	d.GPU = cfg.String("function.gpu", d.GPU)
	d.MaxContainers = cfg.Int("function.max_containers", d.MaxContainers)
	d.CreateIfMissing = cfg.Bool("function.create_if_missing", d.CreateIfMissing)
	d.WorkDir = cfg.String("function.workdir", d.WorkDir)
	d.Listen = cfg.String("function.listen", d.Listen)
	d.AliasDrift = cfg.String("function.alias_drift", d.AliasDrift)

	if raw := cfg.String("function.timeout"); raw != "" {
		timeout, err := ParseTimeout(raw)
		if err != nil {
			return nil, err
		}
		d.Timeout = timeout
	}

	if raw := cfg.String("function.volumes"); raw != "" {
		mounts, err := ParseVolumes(strings.Split(raw, ","))
		if err != nil {
			return nil, err
		}
		d.Volumes = mounts
	}

	d.Resources.Memory = cfg.String("function.memory")
	if raw := cfg.String("function.cpu"); raw != "" {
		quota, err := ParseCPU(raw, d.Resources.CpuPeriod)
		if err != nil {
			return nil, err
		}
		d.Resources.CpuQuota = quota
	}

	return d, nil
}

// 检查 Descriptor 是否合法，一次性返回所有的错误
func (d *Descriptor) Validate() error {
	var result *multierror.Error
	invalid := func(format string, args ...interface{}) {
		result = multierror.Append(result, errors.Wrapf(errdefs.ErrInvalidArgument, format, args...))
	}

	if d.Name == "" {
		invalid("function name is empty")
	}
	if d.Timeout <= 0 {
		invalid("timeout must be positive, got %v", d.Timeout)
	}
	if d.MaxContainers < 1 {
		invalid("max containers must be at least 1, got %d", d.MaxContainers)
	}
	if len(d.Volumes) == 0 {
		invalid("at least one volume mount is required")
	}
	seen := make(map[string]bool, len(d.Volumes))
	for _, m := range d.Volumes {
		if m.Store == "" {
			invalid("volume mounted at %q has no store name", m.Destination)
		}
		if !filepath.IsAbs(m.Destination) {
			invalid("mount point %q of volume %q is not absolute", m.Destination, m.Store)
		}
		dest := filepath.Clean(m.Destination)
		if seen[dest] {
			invalid("mount point %q is used more than once", dest)
		}
		seen[dest] = true
	}
	if !filepath.IsAbs(d.WorkDir) {
		invalid("workdir %q is not absolute", d.WorkDir)
	}
	if d.Listen == "" {
		invalid("listen address is empty")
	}
	if d.AliasDrift != AliasDriftFail && d.AliasDrift != AliasDriftTolerate {
		invalid("unknown alias drift policy %q", d.AliasDrift)
	}

	return result.ErrorOrNil()
}

// 返回第一个 volume 挂载，路径别名都指向它
func (d *Descriptor) PrimaryMount() Mount {
	if len(d.Volumes) == 0 {
		return Mount{}
	}
	return d.Volumes[0]
}

// 解析 volume 参数，格式为 store:/mount
func ParseVolumes(specs []string) ([]Mount, error) {
	mounts := make([]Mount, 0, len(specs))
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		parts := strings.SplitN(spec, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "invalid volume %q, expected store:/mount", spec)
		}
		mounts = append(mounts, Mount{
			Store:       parts[0],
			Destination: filepath.Clean(parts[1]),
		})
	}
	return mounts, nil
}

// 解析超时时间，既支持 600s 这样的 duration，也支持纯数字的秒数
func ParseTimeout(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	timeout, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.Wrapf(errdefs.ErrInvalidArgument, "invalid timeout %q", raw)
	}
	return timeout, nil
}

// 将 0.5 这样的 CPU 核数换算为一个调度周期内的 CPU 时间
func ParseCPU(raw string, period uint64) (uint64, error) {
	cpus, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || cpus <= 0 {
		return 0, errors.Wrapf(errdefs.ErrInvalidArgument, "invalid cpu limit %q", raw)
	}
	return uint64(cpus * float64(period)), nil
}
