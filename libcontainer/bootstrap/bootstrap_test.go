package bootstrap

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m-restorer/libcontainer/bridge"
	"m-restorer/libcontainer/config"
)

type fixture struct {
	mount  string
	work   string
	calls  int
	phases []Phase
}

func (f *fixture) procedure(t *testing.T, factory Factory) *Procedure {
	t.Helper()
	b, err := bridge.New(f.mount, bridge.DefaultAliases, config.AliasDriftFail)
	require.NoError(t, err)
	p, err := New(Options{
		Bridge:  b,
		WorkDir: f.work,
		Factory: func(paths bridge.Paths) (http.Handler, error) {
			f.calls++
			return factory(paths)
		},
		OnPhase: func(phase Phase) { f.phases = append(f.phases, phase) },
	})
	require.NoError(t, err)
	return p
}

func newFixture(t *testing.T) *fixture {
	return &fixture{mount: t.TempDir(), work: t.TempDir()}
}

func okFactory(bridge.Paths) (http.Handler, error) {
	return http.NewServeMux(), nil
}

func TestRunFreshStore(t *testing.T) {
	f := newFixture(t)
	p := f.procedure(t, okFactory)

	handler, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, handler)
	assert.Equal(t, PhaseApplicationReady, p.Phase())
	assert.Equal(t, []Phase{PhaseDirectoriesReady, PhaseAliasesReady, PhaseApplicationReady}, f.phases)

	dirs, err := os.ReadDir(f.mount)
	require.NoError(t, err)
	assert.Len(t, dirs, 2)
	for _, d := range dirs {
		assert.True(t, d.IsDir())
	}

	links, err := os.ReadDir(f.work)
	require.NoError(t, err)
	assert.Len(t, links, 2)
	for _, a := range bridge.DefaultAliases {
		target, err := os.Readlink(filepath.Join(f.work, a.Link))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(f.mount, a.Target), target)
	}
}

func TestFactoryObservesPreparedFilesystem(t *testing.T) {
	f := newFixture(t)
	p := f.procedure(t, func(paths bridge.Paths) (http.Handler, error) {
		for _, name := range []string{bridge.Uploads, bridge.Processed} {
			dir, err := paths.Get(name)
			if err != nil {
				return nil, err
			}
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				return nil, errors.Errorf("%s not ready before factory call", dir)
			}
		}
		for _, a := range bridge.DefaultAliases {
			if _, err := os.Stat(filepath.Join(f.work, a.Link)); err != nil {
				return nil, errors.Wrap(err, "alias not ready before factory call")
			}
		}
		return http.NewServeMux(), nil
	})

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)
}

func TestFactoryCalledOnce(t *testing.T) {
	f := newFixture(t)
	p := f.procedure(t, okFactory)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	handler, err := p.Run(context.Background())
	assert.Nil(t, handler)
	assert.ErrorIs(t, err, ErrAlreadyBootstrapped)
	assert.Equal(t, 1, f.calls)
}

func TestResumeAfterFactoryFailure(t *testing.T) {
	f := newFixture(t)
	fail := true
	p := f.procedure(t, func(paths bridge.Paths) (http.Handler, error) {
		if fail {
			return nil, errors.New("weights missing")
		}
		return http.NewServeMux(), nil
	})

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights missing")
	assert.Equal(t, PhaseAliasesReady, p.Phase())

	fail = false
	handler, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, handler)
	assert.Equal(t, 2, f.calls)
	// 目录与别名只各自完成一次
	assert.Equal(t, []Phase{PhaseDirectoriesReady, PhaseAliasesReady, PhaseApplicationReady}, f.phases)
}

func TestFactoryPanicAndNilHandler(t *testing.T) {
	f := newFixture(t)
	p := f.procedure(t, func(bridge.Paths) (http.Handler, error) {
		panic("import failed")
	})
	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "application factory panicked: import failed")
	_, withStack := err.(interface{ StackTrace() errors.StackTrace })
	assert.True(t, withStack, "panic error should carry a stack trace")
	assert.Equal(t, PhaseAliasesReady, p.Phase())

	f = newFixture(t)
	p = f.procedure(t, func(bridge.Paths) (http.Handler, error) {
		return nil, nil
	})
	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, PhaseAliasesReady, p.Phase())
}

func TestFilesystemFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	// 挂载点是一个普通文件，子目录无法创建
	f.mount = filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(f.mount, nil, 0644))
	p := f.procedure(t, okFactory)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, PhaseUninitialized, p.Phase())
	assert.Zero(t, f.calls)
}

func TestRerunAfterContainerRestart(t *testing.T) {
	f := newFixture(t)

	_, err := f.procedure(t, okFactory).Run(context.Background())
	require.NoError(t, err)

	// 容器重启后，新的 Procedure 作用在同一个存储和工作目录上
	handler, err := f.procedure(t, okFactory).Run(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, handler)

	links, err := os.ReadDir(f.work)
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

func TestRunCanceled(t *testing.T) {
	f := newFixture(t)
	p := f.procedure(t, okFactory)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, PhaseUninitialized, p.Phase())
	assert.Zero(t, f.calls)
}

func TestNewRequiresOptions(t *testing.T) {
	_, err := New(Options{})
	assert.True(t, errdefs.IsInvalidArgument(err))
}

func TestPhaseTransition(t *testing.T) {
	assert.NoError(t, PhaseUninitialized.transition(PhaseUninitialized, PhaseDirectoriesReady))
	assert.NoError(t, PhaseAliasesReady.transition(PhaseAliasesReady, PhaseApplicationReady))

	err := PhaseUninitialized.transition(PhaseUninitialized, PhaseAliasesReady)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = PhaseDirectoriesReady.transition(PhaseUninitialized, PhaseDirectoriesReady)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = PhaseApplicationReady.transition(PhaseApplicationReady, PhaseUninitialized)
	assert.True(t, errdefs.IsFailedPrecondition(err))

	assert.True(t, PhaseAliasesReady.Reached(PhaseDirectoriesReady))
	assert.False(t, PhaseDirectoriesReady.Reached(PhaseAliasesReady))
}
