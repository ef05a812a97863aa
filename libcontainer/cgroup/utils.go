package cgroup

import (
	"sync"

	"golang.org/x/sys/unix"

	"m-restorer/libcontainer/constant"
)

var (
	isUnifiedOnce sync.Once
	isUnified     bool
)

// 宿主机的 cgroup 挂载点是否为 cgroup v2，结果只探测一次
func IsCgroup2UnifiedMode() bool {
	isUnifiedOnce.Do(func() {
		isUnified = isCgroup2Mount(constant.CgroupV2UnifiedMountPoint)
	})
	return isUnified
}

// 通过文件系统类型判断 mountPoint 是否挂载了 cgroup2
func isCgroup2Mount(mountPoint string) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(mountPoint, &st); err != nil {
		// 挂载点不存在或无法访问时按不支持处理
		return false
	}
	return st.Type == unix.CGROUP2_SUPER_MAGIC
}
