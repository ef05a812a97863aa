package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli"

	"m-restorer/libcontainer/config"
)

// m-restorer logs 命令
var LogsCommand = cli.Command{
	Name:      "logs",
	Usage:     `fetch the logs of a container`,
	UsageText: `m-restorer logs CONTAINER`,

	Action: func(context *cli.Context) error {
		if len(context.Args()) < 1 {
			return fmt.Errorf("\"m-restorer logs\" requires at least 1 argument")
		}

		// 获取容器 ID
		c := context.Args().Get(0)
		id, err := config.GetIDFromNameOrPrefix(c)
		if err != nil {
			return fmt.Errorf("container %s not found: %v", c, err)
		}

		// 打印容器日志
		if err := logContainer(id, os.Stdout); err != nil {
			return fmt.Errorf("failed to log container %s: %v", id, err)
		}

		return nil
	},
}

// 查询容器的日志文件，并打印
func logContainer(id string, out io.Writer) error {
	// 获取容器 Config
	conf, err := config.GetConfigFromID(id)
	if err != nil {
		return fmt.Errorf("failed to get container config: %v", err)
	}

	// 读取容器日志文件
	logFile, err := os.Open(conf.LogPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %v", err)
	}
	defer logFile.Close()

	// 打印日志内容
	if _, err := io.Copy(out, logFile); err != nil {
		return fmt.Errorf("failed to print log content: %v", err)
	}

	return nil
}
