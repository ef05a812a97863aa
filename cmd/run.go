package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"m-restorer/libcontainer"
	"m-restorer/libcontainer/config"
	"m-restorer/libcontainer/constant"
	"m-restorer/libcontainer/scheduler"
	"m-restorer/libcontainer/store"
)

// m-restorer run 命令
var RunCommand = cli.Command{
	Name:      "run",
	Usage:     `start a function container and serve the application`,
	UsageText: `m-restorer run [OPTIONS]`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "config, c", // 函数描述文件
			Usage: "function descriptor file.	eg: -c /etc/m-restorer/function.ini",
		},
		cli.StringFlag{
			Name:  "name", // 容器名称
			Usage: "container name.	eg: -name restorer-1",
		},
		cli.StringSliceFlag{
			Name:  "v", // 挂载 volume
			Usage: "mount a persistent volume.	eg: -v my-volume:/data",
		},
		cli.StringFlag{
			Name:  "gpu", // GPU 需求
			Usage: "gpu requirement: none, any or a model.	eg: -gpu T4",
		},
		cli.StringFlag{
			Name:  "timeout", // 最长运行时间
			Usage: "container timeout.	eg: -timeout 600s",
		},
		cli.StringFlag{
			Name:  "mem", // 内存限制
			Usage: "memory limit.	eg: -mem 100m",
		},
		cli.StringFlag{
			Name:  "cpu", // CPU 使用率限制
			Usage: "cpu limit.	eg: -cpu 0.5",
		},
		cli.StringFlag{
			Name:  "listen", // web 应用监听地址
			Usage: "application listen address.	eg: -listen 0.0.0.0:8000",
		},
	},

	// m-restorer run 命令的入口点
	// 1. 生成函数的 Descriptor
	// 2. 按照 Descriptor 调度并运行容器
	Action: func(ctx *cli.Context) error {
		desc, err := getDescriptor(ctx)
		if err != nil {
			return fmt.Errorf("invalid function descriptor: %v", err)
		}
		return run(desc, ctx.String("name"))
	},
}

// 读取描述文件，再用命令行参数覆盖
func getDescriptor(ctx *cli.Context) (*config.Descriptor, error) {
	descPath := ctx.String("config")
	if descPath == "" {
		if _, err := os.Stat(constant.DefaultDescriptorPath); err == nil {
			descPath = constant.DefaultDescriptorPath
		}
	}

	desc := config.DefaultDescriptor()
	if descPath != "" {
		loaded, err := config.LoadDescriptor(descPath)
		if err != nil {
			return nil, err
		}
		desc = loaded
		log.Debugf("function descriptor loaded from %s", descPath)
	}

	if ctx.IsSet("gpu") {
		desc.GPU = ctx.String("gpu")
	}
	if ctx.IsSet("listen") {
		desc.Listen = ctx.String("listen")
	}
	if volumes := ctx.StringSlice("v"); len(volumes) > 0 {
		mounts, err := config.ParseVolumes(volumes)
		if err != nil {
			return nil, err
		}
		desc.Volumes = mounts
	}
	if ctx.IsSet("timeout") {
		timeout, err := config.ParseTimeout(ctx.String("timeout"))
		if err != nil {
			return nil, err
		}
		desc.Timeout = timeout
	}
	if ctx.IsSet("mem") {
		desc.Resources.Memory = ctx.String("mem")
	}
	if ctx.IsSet("cpu") {
		quota, err := config.ParseCPU(ctx.String("cpu"), desc.Resources.CpuPeriod)
		if err != nil {
			return nil, err
		}
		desc.Resources.CpuQuota = quota
	}

	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if desc.MaxContainers > 1 {
		log.Warnf("max containers is %d, volumes may see concurrent writers", desc.MaxContainers)
	}
	return desc, nil
}

func run(desc *config.Descriptor, name string) error {
	// GPU 不满足要求时直接调度失败
	gpu, err := scheduler.ProbeGPU(constant.DevPath, constant.NvidiaProcPath, desc.GPU)
	if err != nil {
		return fmt.Errorf("scheduling failed: %w", err)
	}
	if gpu != nil {
		log.Infof("scheduled on gpu %s %s", gpu.Device, gpu.Model)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 占用一个容器槽位，保证同时存活的容器数不超过上限
	limiter, err := scheduler.NewLimiter(path.Join(constant.RootPath, "locks"), desc.Name, desc.MaxContainers)
	if err != nil {
		return err
	}
	slot, err := limiter.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("scheduling failed: %w", err)
	}
	defer slot.Release()

	conf := config.CreateConfig(desc, name)
	if err := resolveVolumes(desc, conf); err != nil {
		return err
	}

	// 创建容器对象
	container := libcontainer.NewContainer(conf)
	container.Output = os.Stdout
	// 函数结束后释放容器资源
	defer container.Remove()

	// 创建容器运行环境
	if err := container.Create(); err != nil {
		return fmt.Errorf("create container error: %v", err)
	}

	log.WithFields(log.Fields{
		"id":       conf.ID[:12],
		"name":     conf.Name,
		"function": conf.Function,
		"slot":     slot.Index,
	}).Info("starting container")

	// 启动容器，直到容器退出或超时
	if err := container.Start(ctx); err != nil {
		return fmt.Errorf("container %s: %v", conf.ID[:12], err)
	}
	return nil
}

// 解析 volume 后立即关闭注册表，bolt 数据库持有独占锁
func resolveVolumes(desc *config.Descriptor, conf *config.Config) error {
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	defer reg.Close()

	policy := store.MustExist
	if desc.CreateIfMissing {
		policy = store.CreateIfMissing
	}
	return libcontainer.ResolveVolumes(reg, conf, policy)
}

func openRegistry() (*store.Registry, error) {
	return store.Open(path.Join(constant.RootPath, "volumes.db"), path.Join(constant.RootPath, "volumes"))
}
