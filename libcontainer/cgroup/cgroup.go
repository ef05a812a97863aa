package cgroup

import (
	"github.com/containerd/errdefs"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	v2 "m-restorer/libcontainer/cgroup/v2"
	"m-restorer/libcontainer/config"
	"m-restorer/libcontainer/constant"
)

// 宿主机没有启用 cgroup v2，资源限制无法生效
var ErrCgroupV2Unsupported = errors.Wrap(errdefs.ErrNotImplemented, "cgroup v2 is not supported")

// CgroupManager 管理一个容器的 cgroup
type CgroupManager interface {
	// 创建 cgroup 目录
	Init() error

	// 将进程 pid 添加至 cgroup 中
	Apply(pid int) error

	// 写入资源限制，返回所有 controller 的错误
	Set(res *config.Resources) error

	// 销毁 cgroup
	Destroy()
}

// 为 dirPath 创建 CgroupManager，只支持 cgroup v2
func NewCgroupManager(dirPath string) (CgroupManager, error) {
	if !IsCgroup2UnifiedMode() {
		return nil, errors.Wrapf(ErrCgroupV2Unsupported, "%s is not a cgroup2 mount", constant.CgroupV2UnifiedMountPoint)
	}
	log.Debugf("using cgroup v2 at %s", dirPath)
	return v2.NewCgroupV2Manager(dirPath), nil
}
