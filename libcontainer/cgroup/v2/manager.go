package v2

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"m-restorer/libcontainer/config"
	"m-restorer/libcontainer/constant"
)

type CgroupV2Manager struct {
	dirPath     string
	resource    *config.Resources
	controllers []Controller
}

func NewCgroupV2Manager(dirPath string) *CgroupV2Manager {
	if !strings.HasPrefix(dirPath, constant.CgroupV2UnifiedMountPoint) {
		dirPath = path.Join(constant.CgroupV2UnifiedMountPoint, dirPath)
	}

	return &CgroupV2Manager{
		dirPath:     dirPath,
		controllers: Controllers,
	}
}

func (c *CgroupV2Manager) Init() error {
	// 父目录需要开启 cpu 和 memory controller，子 cgroup 才能使用它们
	parent := path.Dir(c.dirPath)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("create cgroup parent dir \"%v\" fail: %w", parent, err)
	}
	subtree := path.Join(parent, "cgroup.subtree_control")
	if err := os.WriteFile(subtree, []byte("+cpu +memory"), 0644); err != nil {
		log.Warnf("enable controllers in %v fail: %v", subtree, err)
	}

	_, err := os.Stat(c.dirPath)
	if err == nil { // 如果 cgroup 目录已经存在，则返回错误
		return fmt.Errorf("cgroup dir %s already exists", c.dirPath)
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat cgroup dir \"%v\" fail: %w", c.dirPath, err)
	}
	// cgroup 目录不存在，则创建
	if err := os.Mkdir(c.dirPath, 0755); err != nil {
		return fmt.Errorf("create cgroup dir \"%v\" fail: %w", c.dirPath, err)
	}
	return nil
}

func (c *CgroupV2Manager) Apply(pid int) error {
	// 将进程的 PID 写入 cgroup.procs 文件
	if err := os.WriteFile(path.Join(c.dirPath, "cgroup.procs"), []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("os.WriteFile() to file %v fail: %w", path.Join(c.dirPath, "cgroup.procs"), err)
	}

	return nil
}

// 依次写入每个 controller 的接口文件，单个 controller 失败不影响其他 controller
func (c *CgroupV2Manager) Set(resConf *config.Resources) error {
	c.resource = resConf
	var result *multierror.Error
	for _, controller := range c.controllers {
		file := path.Join(c.dirPath, controller.File())
		value := controller.Value(resConf)
		if err := os.WriteFile(file, []byte(value), 0644); err != nil {
			result = multierror.Append(result, fmt.Errorf("set %s controller: %w", controller.Name(), err))
			continue
		}
		log.Debugf("set cgroup %s: %s", controller.File(), value)
	}
	return result.ErrorOrNil()
}

func (c *CgroupV2Manager) Destroy() {
	// cgroup 目录中的文件由内核维护，只能删除目录本身
	if err := os.Remove(c.dirPath); err != nil && !os.IsNotExist(err) {
		log.Warnf("remove cgroup dir %v fail: %v", c.dirPath, err)
	}
}
