package libcontainer

import (
	"context"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"m-restorer/libcontainer/cgroup"
	"m-restorer/libcontainer/config"
)

// 容器收到 SIGTERM 后，等待其退出的时间
var stopGracePeriod = 10 * time.Second

// 生成容器进程的句柄，测试中替换为不需要 namespace 权限的进程
var newProcess = newContainerProcess

type Container struct {
	*config.Config
	CgroupManager cgroup.CgroupManager

	logFile *os.File
	// 容器输出除了写入日志文件，还会写到这里，可以为空
	Output io.Writer
}

// 创建容器对象
func NewContainer(conf *config.Config) *Container {
	return &Container{
		Config: conf,
	}
}

// 创建容器的运行环境
func (c *Container) Create() error {
	// 创建状态目录并记录容器配置
	if err := config.RecordContainerConfig(c.Config); err != nil {
		return fmt.Errorf("failed to record container config: %v", err)
	}

	// 创建日志文件
	logFile, err := os.OpenFile(c.Config.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %v", err)
	}
	c.logFile = logFile

	// 没有设置资源限制时不需要 cgroup
	if c.Config.Cgroup == nil {
		return nil
	}

	// 创建 cgroup Manager
	cgroupManager, err := cgroup.NewCgroupManager(c.Config.Cgroup.Path)
	if err != nil {
		log.Warnf("resource limits ignored: %v", err)
		return nil
	}
	// 初始化 cgroup
	if err = cgroupManager.Init(); err != nil {
		return fmt.Errorf("failed to init cgroup: %v", err)
	}
	c.CgroupManager = cgroupManager
	// 设置 cgroup 的资源限制
	if err := cgroupManager.Set(c.Config.Cgroup.Resources); err != nil {
		log.Warnf("some resource limits were not applied: %v", err)
	}

	return nil
}

// 启动容器，并等待容器结束
// 超过 Timeout 或者 ctx 被取消时，容器会被终止
func (c *Container) Start(ctx context.Context) error {
	var output io.Writer = c.logFile
	if c.Output != nil {
		output = io.MultiWriter(c.logFile, c.Output)
	}

	// 生成一个容器进程的句柄，它启动后会运行 m-restorer init
	process, writePipe, err := newProcess(c.Config, output)
	if err != nil {
		return fmt.Errorf("failed to create new process: %v", err)
	}

	// 启动容器进程
	if err := process.Start(); err != nil {
		writePipe.Close()
		return fmt.Errorf("failed to run process.Start(): %v", err)
	}
	c.Config.Pid = process.Process.Pid
	c.Config.Status = config.StatusRunning

	// 将容器的配置信息持久化到磁盘上
	if err := config.RecordContainerConfig(c.Config); err != nil {
		_ = process.Process.Kill()
		_ = process.Wait()
		return fmt.Errorf("failed to record container config: %v", err)
	}

	// 将容器进程加入到 cgroup 中
	if c.CgroupManager != nil {
		if err := c.CgroupManager.Apply(c.Config.Pid); err != nil {
			_ = process.Process.Kill()
			_ = process.Wait()
			return fmt.Errorf("failed to apply process %v to cgroup: %v", c.Config.Pid, err)
		}
	}

	// 子进程创建之后再通过管道发送配置
	if err := sendInitConfig(c.Config, writePipe); err != nil {
		_ = process.Process.Kill()
		_ = process.Wait()
		return err
	}
	log.WithFields(log.Fields{"id": c.Config.ID[:12], "pid": c.Config.Pid}).Info("container started")

	// 等待容器进程结束
	done := make(chan error, 1)
	go func() { done <- process.Wait() }()

	timeout := time.NewTimer(c.Config.Timeout)
	defer timeout.Stop()

	var reason string
	select {
	case err := <-done:
		c.markStopped()
		if err != nil {
			return fmt.Errorf("container exited: %v", err)
		}
		return nil
	case <-timeout.C:
		reason = fmt.Sprintf("timeout of %v elapsed", c.Config.Timeout)
	case <-ctx.Done():
		reason = ctx.Err().Error()
	}

	log.Warnf("stopping container %s: %s", c.Config.ID[:12], reason)
	_ = process.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
	case <-time.After(stopGracePeriod):
		_ = process.Process.Kill()
		<-done
	}
	c.markStopped()
	return fmt.Errorf("container terminated: %s", reason)
}

func (c *Container) markStopped() {
	c.Config.Status = config.StatusStopped
	if err := config.RecordContainerConfig(c.Config); err != nil {
		log.Warnf("failed to record stopped state: %v", err)
	}
}

// 清理容器数据
func (c *Container) Remove() {
	if c.logFile != nil {
		_ = c.logFile.Close()
	}

	// 删除容器的状态信息
	config.DeleteContainerState(c.Config)

	// 释放 cgroup
	if c.CgroupManager != nil {
		c.CgroupManager.Destroy()
	}
}
