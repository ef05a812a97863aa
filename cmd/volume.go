package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli"

	"m-restorer/libcontainer/store"
)

// m-restorer volume 命令
var VolumeCommand = cli.Command{
	Name:  "volume",
	Usage: `manage persistent volumes`,
	Subcommands: []cli.Command{
		{
			Name:      "create",
			Usage:     `create a volume, or resolve it if it already exists`,
			UsageText: `m-restorer volume create NAME`,
			Action: func(context *cli.Context) error {
				if context.NArg() < 1 {
					return fmt.Errorf("missing volume name")
				}
				return resolveVolume(context.Args().First(), store.CreateIfMissing)
			},
		},
		{
			Name:      "inspect",
			Usage:     `show a volume, fails if it does not exist`,
			UsageText: `m-restorer volume inspect NAME`,
			Action: func(context *cli.Context) error {
				if context.NArg() < 1 {
					return fmt.Errorf("missing volume name")
				}
				return resolveVolume(context.Args().First(), store.MustExist)
			},
		},
		{
			Name:      "ls",
			Usage:     `list volumes`,
			UsageText: `m-restorer volume ls`,
			Action: func(context *cli.Context) error {
				return listVolumes()
			},
		},
	},
}

func resolveVolume(name string, policy store.Policy) error {
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	defer reg.Close()

	vol, err := reg.Resolve(name, policy)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(vol)
}

func listVolumes() error {
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	defer reg.Close()

	vols, err := reg.List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 12, 1, 3, ' ', 0)
	fmt.Fprintf(w, "NAME\tCREATED\tPATH\n")
	for _, vol := range vols {
		fmt.Fprintf(w, "%s\t%s\t%s\n", vol.Name, vol.CreatedAt.Format("2006-01-02 15:04:05"), vol.Path)
	}
	return w.Flush()
}
