package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDescriptor(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "function.ini")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestDefaultDescriptor(t *testing.T) {
	d := DefaultDescriptor()
	require.NoError(t, d.Validate())

	assert.Equal(t, "motasaith-ai-restorer", d.Name)
	assert.Equal(t, 600*time.Second, d.Timeout)
	assert.Equal(t, 1, d.MaxContainers)
	assert.Equal(t, Mount{Store: "motasaith-restorer-volume", Destination: "/data"}, d.PrimaryMount())
	assert.Equal(t, AliasDriftFail, d.AliasDrift)
	assert.True(t, d.Resources.Empty())
}

func TestLoadDescriptor(t *testing.T) {
	p := writeDescriptor(t, `
[function]
name = restorer-dev
gpu = T4
timeout = 90
max_containers = 2
volumes = "dev-volume:/data, models:/models"
create_if_missing = false
alias_drift = tolerate
memory = 512m
cpu = 0.5
`)

	d, err := LoadDescriptor(p)
	require.NoError(t, err)
	require.NoError(t, d.Validate())

	assert.Equal(t, "restorer-dev", d.Name)
	assert.Equal(t, "T4", d.GPU)
	assert.Equal(t, 90*time.Second, d.Timeout)
	assert.Equal(t, 2, d.MaxContainers)
	assert.False(t, d.CreateIfMissing)
	assert.Equal(t, AliasDriftTolerate, d.AliasDrift)
	assert.Equal(t, []Mount{
		{Store: "dev-volume", Destination: "/data"},
		{Store: "models", Destination: "/models"},
	}, d.Volumes)
	assert.Equal(t, "512m", d.Resources.Memory)
	assert.Equal(t, uint64(50000), d.Resources.CpuQuota)

	// 未出现的字段保持默认值
	assert.Equal(t, DefaultWorkDir, d.WorkDir)
	assert.Equal(t, DefaultListen, d.Listen)
}

func TestLoadDescriptorErrors(t *testing.T) {
	_, err := LoadDescriptor(filepath.Join(t.TempDir(), "missing.ini"))
	assert.Error(t, err)

	p := writeDescriptor(t, "[function]\ntimeout = soon\n")
	_, err = LoadDescriptor(p)
	assert.True(t, errdefs.IsInvalidArgument(err))

	p = writeDescriptor(t, "[function]\nvolumes = no-mount-point\n")
	_, err = LoadDescriptor(p)
	assert.True(t, errdefs.IsInvalidArgument(err))
}

func TestValidateCollectsAllErrors(t *testing.T) {
	d := DefaultDescriptor()
	d.Name = ""
	d.Timeout = 0
	d.MaxContainers = 0
	d.Volumes = []Mount{
		{Store: "a", Destination: "/data"},
		{Store: "b", Destination: "/data/"},
		{Store: "", Destination: "relative"},
	}
	d.AliasDrift = "ignore"

	err := d.Validate()
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 7)
	for _, e := range merr.Errors {
		assert.True(t, errdefs.IsInvalidArgument(e), e.Error())
	}
}

func TestValidateRequiresVolume(t *testing.T) {
	d := DefaultDescriptor()
	d.Volumes = nil
	assert.Error(t, d.Validate())
	assert.Equal(t, Mount{}, d.PrimaryMount())
}

func TestParseVolumes(t *testing.T) {
	mounts, err := ParseVolumes([]string{"vol:/data/", " ", "other:/mnt/x"})
	require.NoError(t, err)
	assert.Equal(t, []Mount{
		{Store: "vol", Destination: "/data"},
		{Store: "other", Destination: "/mnt/x"},
	}, mounts)

	for _, bad := range []string{"vol", ":/data", "vol:"} {
		_, err := ParseVolumes([]string{bad})
		assert.True(t, errdefs.IsInvalidArgument(err), bad)
	}
}

func TestParseTimeout(t *testing.T) {
	d, err := ParseTimeout("600")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, d)

	d, err = ParseTimeout("1m30s")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = ParseTimeout("forever")
	assert.True(t, errdefs.IsInvalidArgument(err))
}

func TestParseCPU(t *testing.T) {
	quota, err := ParseCPU("1.5", DefaultCpuPeriod)
	require.NoError(t, err)
	assert.Equal(t, uint64(150000), quota)

	for _, bad := range []string{"0", "-1", "half"} {
		_, err := ParseCPU(bad, DefaultCpuPeriod)
		assert.True(t, errdefs.IsInvalidArgument(err), bad)
	}
}
