package libcontainer

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"

	"m-restorer/libcontainer/config"
	"m-restorer/libcontainer/store"
)

// 解析容器的所有 volume，将宿主机上的目录填入 Mount.Source
func ResolveVolumes(reg *store.Registry, conf *config.Config, policy store.Policy) error {
	for i := range conf.Mounts {
		vol, err := reg.Resolve(conf.Mounts[i].Store, policy)
		if err != nil {
			return fmt.Errorf("failed to resolve volume %s: %w", conf.Mounts[i].Store, err)
		}
		conf.Mounts[i].Source = vol.Path
		log.Debugf("volume %s resolved to %s", vol.Name, vol.Path)
	}
	return nil
}

// 将所有指定的 volume 挂载到容器的相应挂载点上
// 在容器的 mount namespace 中执行
func MountVolumes(conf *config.Config) error {
	for _, mount := range conf.Mounts {
		if err := mountVolume(mount.Source, mount.Destination); err != nil {
			return fmt.Errorf("failed to mount volume [%v:%v]: %w", mount.Source, mount.Destination, err)
		}
		log.Debugf("mount volume [%v:%v] success", mount.Source, mount.Destination)
	}

	return nil
}

// 使用 bind mount 挂载 volume
func mountVolume(src string, dest string) error {
	if src == "" {
		return fmt.Errorf("volume mounted at %s was not resolved", dest)
	}
	// volume 目录就是挂载点本身时无需挂载
	if filepath.Clean(src) == filepath.Clean(dest) {
		return os.MkdirAll(dest, 0755)
	}

	// 创建宿主机上的 src 目录
	if err := os.MkdirAll(src, 0755); err != nil {
		return fmt.Errorf("failed to create src dir: %w", err)
	}
	// 创建容器内的挂载点
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create dest dir: %w", err)
	}

	// 通过 mount 系统调用进行 bind mount
	if err := syscall.Mount(src, dest, "", syscall.MS_BIND|syscall.MS_REC, ""); err != nil {
		return fmt.Errorf("failed to bind mount: %w", err)
	}

	return nil
}

// 卸载容器的所有 volume
func UmountVolumes(conf *config.Config) {
	for _, mount := range conf.Mounts {
		if filepath.Clean(mount.Source) == filepath.Clean(mount.Destination) {
			continue
		}
		if err := syscall.Unmount(mount.Destination, 0); err != nil {
			log.Warnf("umount %s: %v", mount.Destination, err)
		}
	}
}
