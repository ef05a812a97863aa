package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"m-restorer/cmd"
)

const (
	usage = `run a GPU image-restoration function in a container.

m-restorer schedules a function container, attaches its persistent volume,
bootstraps the working directory and serves the web application.`
)

// main 函数是整个程序的入口
// 使用的是 github.com/urfave/cli 框架来构建命令行工具
func main() {
	app := cli.NewApp()
	app.Name = "m-restorer"
	app.Usage = usage

	// 添加 run 等子命令
	app.Commands = []cli.Command{
		cmd.RunCommand,
		cmd.InitCommand,
		cmd.ContainerListCommand,
		cmd.LogsCommand,
		cmd.StopCommand,
		cmd.VolumeCommand,
	}
	// 全局 flag
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "debug", // 启用 debug 模式
			Usage: "enable debug mode",
		},
		cli.StringFlag{
			Name:  "log-format", // 日志格式
			Value: "text",
			Usage: "log format: text or json",
		},
	}
	app.Before = func(context *cli.Context) error {
		// 设置日志格式
		switch context.String("log-format") {
		case "json":
			log.SetFormatter(&log.JSONFormatter{})
		case "text":
			log.SetFormatter(&log.TextFormatter{
				ForceColors:   true,
				FullTimestamp: true,
			})
		default:
			return fmt.Errorf("unknown log format %q", context.String("log-format"))
		}
		// 设置日志级别
		if context.Bool("debug") {
			log.SetLevel(log.DebugLevel)
		}

		log.SetOutput(os.Stdout)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
