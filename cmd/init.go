package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"m-restorer/libcontainer"
	"m-restorer/libcontainer/bootstrap"
	"m-restorer/libcontainer/bridge"
	"m-restorer/libcontainer/config"
	"m-restorer/webapp"
)

// m-restorer init 命令（它不可以被显式调用）
var InitCommand = cli.Command{
	Name:   "init",
	Usage:  `Init the container process, do not call it outside!`,
	Hidden: true, // 隐藏该命令，避免被显式调用

	// 1. 获取传递来的容器配置
	// 2. 在容器中进行初始化，然后提供 web 服务
	Action: func(ctx *cli.Context) error {
		log.Infof("--- Inside the container ---")
		return initContainer()
	},
}

const readPipefdIndex = 3

// 关闭 web 服务时等待请求处理完成的时间
const shutdownTimeout = 5 * time.Second

// 在容器中进行初始化
// 执行到这里的时候容器已经被创建，所以这个函数是在容器内部执行的
func initContainer() error {
	// 读取管道中的容器配置
	// 每个进程默认有 0、1、2 三个文件描述符，cmd.ExtraFiles 中的 readPipe 就是 3
	pipe := os.NewFile(uintptr(readPipefdIndex), "pipe")
	conf, err := libcontainer.ReadInitConfig(pipe)
	_ = pipe.Close()
	if err != nil {
		return err
	}

	// 隔离挂载点，并挂载 proc 文件系统
	if err := setupMountNamespace(); err != nil {
		return err
	}

	// 将持久化存储挂载到挂载点上
	if err := libcontainer.MountVolumes(conf); err != nil {
		return err
	}
	defer libcontainer.UmountVolumes(conf)

	if err := os.MkdirAll(conf.WorkDir, 0755); err != nil {
		return err
	}
	if err := os.Chdir(conf.WorkDir); err != nil {
		return err
	}

	if len(conf.Mounts) == 0 {
		return fmt.Errorf("container %s has no volume to bridge", conf.ID)
	}
	b, err := bridge.New(conf.Mounts[0].Destination, bridge.DefaultAliases, conf.AliasDrift)
	if err != nil {
		return err
	}
	if !log.IsLevelEnabled(log.DebugLevel) {
		gin.SetMode(gin.ReleaseMode)
	}
	procedure, err := bootstrap.New(bootstrap.Options{
		Bridge:  b,
		WorkDir: conf.WorkDir,
		Factory: webapp.Factory(nil),
		OnPhase: func(phase bootstrap.Phase) {
			if err := config.UpdateContainerPhase(conf.ID, string(phase)); err != nil {
				log.Warnf("failed to record phase %s: %v", phase, err)
			}
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler, err := procedure.Run(ctx)
	if err != nil {
		log.Errorf("bootstrap failed: %v", err)
		return err
	}

	return serve(ctx, conf.Listen, handler)
}

// 提供 web 服务，直到 ctx 结束
func serve(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("serving on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Infof("shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

var mount = syscall.Mount

// 隔离挂载点，并挂载容器自己的 proc 文件系统
// 根目录无法设为 private 时后续的挂载会传播到宿主机，必须中止
func setupMountNamespace() error {
	// 实现 mount --make-rprivate /
	// 使得容器内的挂载不会传播到宿主机上
	flags := uintptr(syscall.MS_PRIVATE | syscall.MS_REC)
	if err := mount("none", "/", "", flags, ""); err != nil {
		return fmt.Errorf("make mounts private: %v", err)
	}

	// 通过 mount 挂载容器自己的 proc 文件系统
	defaultMountFlags := syscall.MS_NOEXEC | syscall.MS_NOSUID | syscall.MS_NODEV
	if err := mount("proc", "/proc", "proc", uintptr(defaultMountFlags), ""); err != nil {
		log.Warnf("mount proc: %v", err)
	}
	return nil
}
