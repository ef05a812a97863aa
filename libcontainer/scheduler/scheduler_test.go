package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireSingleSlot(t *testing.T) {
	l, err := NewLimiter(t.TempDir(), "restorer", 1)
	require.NoError(t, err)

	slot, err := l.TryAcquire()
	require.NoError(t, err)
	assert.Equal(t, 0, slot.Index)

	_, err = l.TryAcquire()
	assert.ErrorIs(t, err, ErrNoSlot)
	assert.True(t, errdefs.IsUnavailable(err))

	slot.Release()
	slot.Release()

	slot, err = l.TryAcquire()
	require.NoError(t, err)
	slot.Release()
}

func TestTryAcquireMultipleSlots(t *testing.T) {
	l, err := NewLimiter(t.TempDir(), "restorer", 2)
	require.NoError(t, err)

	a, err := l.TryAcquire()
	require.NoError(t, err)
	b, err := l.TryAcquire()
	require.NoError(t, err)
	assert.NotEqual(t, a.Index, b.Index)

	_, err = l.TryAcquire()
	assert.ErrorIs(t, err, ErrNoSlot)

	a.Release()
	b.Release()
}

func TestAcquireWaitsForRelease(t *testing.T) {
	l, err := NewLimiter(t.TempDir(), "restorer", 1)
	require.NoError(t, err)
	l.PollInterval = 10 * time.Millisecond

	held, err := l.TryAcquire()
	require.NoError(t, err)
	time.AfterFunc(50*time.Millisecond, held.Release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	slot, err := l.Acquire(ctx)
	require.NoError(t, err)
	slot.Release()
}

func TestAcquireHonorsContext(t *testing.T) {
	l, err := NewLimiter(t.TempDir(), "restorer", 1)
	require.NoError(t, err)
	l.PollInterval = 10 * time.Millisecond

	held, err := l.TryAcquire()
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// 两次重叠的启动不会同时对同一个存储执行 bootstrap
func TestOverlappingStartupsAreSerialized(t *testing.T) {
	dir := t.TempDir()

	var running, maxRunning int32
	bootstrap := func() {
		n := atomic.AddInt32(&running, 1)
		for {
			m := atomic.LoadInt32(&maxRunning)
			if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// 每次启动都有自己的 Limiter，就像不同的进程
			l, err := NewLimiter(dir, "restorer", 1)
			if !assert.NoError(t, err) {
				return
			}
			l.PollInterval = 5 * time.Millisecond

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			slot, err := l.Acquire(ctx)
			if !assert.NoError(t, err) {
				return
			}
			defer slot.Release()
			bootstrap()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxRunning)
}

func TestNewLimiterValidation(t *testing.T) {
	_, err := NewLimiter(t.TempDir(), "restorer", 0)
	assert.True(t, errdefs.IsInvalidArgument(err))

	_, err = NewLimiter(t.TempDir(), "", 1)
	assert.True(t, errdefs.IsInvalidArgument(err))
}

func fakeGPUHost(t *testing.T, models ...string) (string, string) {
	t.Helper()
	dev := t.TempDir()
	proc := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dev, "nvidiactl"), nil, 0644))
	for i, model := range models {
		require.NoError(t, os.WriteFile(filepath.Join(dev, "nvidia"+string(rune('0'+i))), nil, 0644))
		gpuDir := filepath.Join(proc, "0000:0"+string(rune('0'+i))+":00.0")
		require.NoError(t, os.MkdirAll(gpuDir, 0755))
		info := "Model: \t\t " + model + "\nIRQ:   \t\t 42\n"
		require.NoError(t, os.WriteFile(filepath.Join(gpuDir, "information"), []byte(info), 0644))
	}
	return dev, proc
}

func TestProbeGPU(t *testing.T) {
	dev, proc := fakeGPUHost(t, "NVIDIA A10G", "Tesla T4")

	gpu, err := ProbeGPU(dev, proc, "none")
	require.NoError(t, err)
	assert.Nil(t, gpu)

	gpu, err = ProbeGPU(dev, proc, "any")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dev, "nvidia0"), gpu.Device)

	gpu, err = ProbeGPU(dev, proc, "t4")
	require.NoError(t, err)
	assert.Equal(t, "Tesla T4", gpu.Model)

	_, err = ProbeGPU(dev, proc, "H100")
	assert.ErrorIs(t, err, ErrNoGPU)
	assert.True(t, errdefs.IsUnavailable(err))
}

func TestProbeGPUWithoutDevices(t *testing.T) {
	dev, proc := fakeGPUHost(t)

	gpus, err := ListGPUs(dev, proc)
	require.NoError(t, err)
	assert.Empty(t, gpus, "nvidiactl is not a gpu")

	_, err = ProbeGPU(dev, proc, "any")
	assert.ErrorIs(t, err, ErrNoGPU)

	_, err = ProbeGPU(filepath.Join(dev, "missing"), proc, "any")
	assert.ErrorIs(t, err, ErrNoGPU)
}
