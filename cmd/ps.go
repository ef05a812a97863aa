package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"m-restorer/libcontainer/config"
)

// m-restorer ps 命令
var ContainerListCommand = cli.Command{
	Name:      "ps",
	Usage:     `show all the containers in list`,
	UsageText: `m-restorer ps`,

	Action: func(context *cli.Context) error {
		if err := listContainers(); err != nil {
			return fmt.Errorf("list containers error: %v", err)
		}
		return nil
	},
}

// 查询 m-restorer 状态目录下的所有目录，根据 config.json 文件获取容器信息
func listContainers() error {
	containersConfigs, broken, err := config.ListContainerConfigs()
	if err != nil {
		return err
	}
	for id, err := range broken {
		log.Warningf("get config from id %s error: %v", id, err)
	}

	w := tabwriter.NewWriter(os.Stdout, 12, 1, 3, ' ', 0)
	_, err = fmt.Fprintf(w, "CONTAINER ID\tPID\tFUNCTION\tCREATED\tSTATUS\tPHASE\tNAME\n")
	if err != nil {
		return fmt.Errorf("failed to execute fmt.Fprintf: %v", err)
	}
	for _, item := range containersConfigs {
		_, err = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			item.ID[:12],
			item.Pid,
			item.Function,
			item.CreatedTime,
			item.Status,
			item.Phase,
			item.Name,
		)
		if err != nil {
			return fmt.Errorf("failed to execute fmt.Fprintf: %v", err)
		}
	}
	return w.Flush()
}
