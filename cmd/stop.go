package cmd

import (
	"fmt"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"m-restorer/libcontainer/config"
)

// m-restorer stop 命令
// 容器收到 SIGTERM 后会关闭 web 服务，run 进程随后回收容器资源
var StopCommand = cli.Command{
	Name:      "stop",
	Usage:     `stop a running container`,
	UsageText: `m-restorer stop CONTAINER`,

	Action: func(context *cli.Context) error {
		if context.NArg() < 1 {
			return fmt.Errorf("missing container id or name")
		}
		return stopContainer(context.Args().First())
	},
}

func stopContainer(nameOrPrefix string) error {
	id, err := config.GetIDFromNameOrPrefix(nameOrPrefix)
	if err != nil {
		return fmt.Errorf("failed to get container id: %v", err)
	}

	// 获取容器 Config
	conf, err := config.GetConfigFromID(id)
	if err != nil {
		return fmt.Errorf("failed to get container config: %v", err)
	}
	if conf.Status != config.StatusRunning || conf.Pid == 0 {
		return fmt.Errorf("container %s is not running", id[:12])
	}

	if err := syscall.Kill(conf.Pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal container %s: %v", id[:12], err)
	}
	log.Infof("sent SIGTERM to container %s (pid %d)", id[:12], conf.Pid)
	return nil
}
