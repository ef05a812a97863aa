package cmd

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"

	"m-restorer/libcontainer/config"
)

func runContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("run", flag.ContinueOnError)
	for _, f := range RunCommand.Flags {
		f.Apply(set)
	}
	require.NoError(t, set.Parse(args))
	ctx := cli.NewContext(cli.NewApp(), set, nil)
	ctx.Command = RunCommand
	return ctx
}

func TestGetDescriptorOverrides(t *testing.T) {
	p := filepath.Join(t.TempDir(), "function.ini")
	require.NoError(t, os.WriteFile(p, []byte("[function]\nname = restorer-dev\ngpu = none\ntimeout = 60\n"), 0644))

	desc, err := getDescriptor(runContext(t,
		"-config", p,
		"-gpu", "T4",
		"-timeout", "2m",
		"-v", "other:/data",
		"-mem", "1g",
		"-cpu", "2",
	))
	require.NoError(t, err)

	assert.Equal(t, "restorer-dev", desc.Name)
	assert.Equal(t, "T4", desc.GPU)
	assert.Equal(t, 2*time.Minute, desc.Timeout)
	assert.Equal(t, []config.Mount{{Store: "other", Destination: "/data"}}, desc.Volumes)
	assert.Equal(t, "1g", desc.Resources.Memory)
	assert.Equal(t, uint64(200000), desc.Resources.CpuQuota)
}

func TestGetDescriptorKeepsFileValues(t *testing.T) {
	p := filepath.Join(t.TempDir(), "function.ini")
	require.NoError(t, os.WriteFile(p, []byte("[function]\ngpu = none\ntimeout = 60\n"), 0644))

	desc, err := getDescriptor(runContext(t, "-config", p))
	require.NoError(t, err)
	assert.Equal(t, config.GPUNone, desc.GPU)
	assert.Equal(t, time.Minute, desc.Timeout)
	assert.Equal(t, config.DefaultFunctionName, desc.Name)
}

func TestGetDescriptorRejectsInvalid(t *testing.T) {
	_, err := getDescriptor(runContext(t, "-timeout", "0"))
	assert.True(t, errdefs.IsInvalidArgument(err))

	_, err = getDescriptor(runContext(t, "-v", "broken"))
	assert.True(t, errdefs.IsInvalidArgument(err))

	_, err = getDescriptor(runContext(t, "-config", filepath.Join(t.TempDir(), "missing.ini")))
	assert.Error(t, err)
}
