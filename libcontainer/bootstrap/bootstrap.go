// bootstrap 包在容器冷启动时准备文件系统视图，并构造 web 应用
//
// 整个过程是一个状态机：
//
//	uninitialized -> directories-ready -> aliases-ready -> application-ready
//
// 每一步失败时阶段保持不变，再次调用 Run 会从上次完成的阶段继续
package bootstrap

import (
	"context"
	"net/http"
	"sync"

	"github.com/containerd/errdefs"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"m-restorer/libcontainer/bridge"
)

var ErrAlreadyBootstrapped = errors.Wrap(errdefs.ErrAlreadyExists, "application already constructed")

// Factory 构造处理请求的 web 应用
// 每个容器只会调用一次
type Factory func(paths bridge.Paths) (http.Handler, error)

type Options struct {
	// 持久化目录与路径别名
	Bridge *bridge.Bridge

	// 路径别名所在的工作目录
	WorkDir string

	// web 应用工厂
	Factory Factory

	// 阶段前进后的回调，可以为空
	OnPhase func(Phase)
}

type Procedure struct {
	mu    sync.Mutex
	phase Phase
	opts  Options
}

func New(opts Options) (*Procedure, error) {
	if opts.Bridge == nil {
		return nil, errors.Wrap(errdefs.ErrInvalidArgument, "bridge is required")
	}
	if opts.Factory == nil {
		return nil, errors.Wrap(errdefs.ErrInvalidArgument, "application factory is required")
	}
	if opts.WorkDir == "" {
		return nil, errors.Wrap(errdefs.ErrInvalidArgument, "workdir is required")
	}
	return &Procedure{
		phase: PhaseUninitialized,
		opts:  opts,
	}, nil
}

func (p *Procedure) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// 依次创建持久化子目录、路径别名，最后构造 web 应用
// 返回的 handler 不会被 Procedure 保留
func (p *Procedure) Run(ctx context.Context) (http.Handler, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.phase == PhaseApplicationReady {
		return nil, ErrAlreadyBootstrapped
	}

	steps := []struct {
		from, to Phase
		fn       func() error
	}{
		{PhaseUninitialized, PhaseDirectoriesReady, p.opts.Bridge.EnsureDirectories},
		{PhaseDirectoriesReady, PhaseAliasesReady, func() error {
			return p.opts.Bridge.EnsureAliases(p.opts.WorkDir)
		}},
	}
	for _, step := range steps {
		if p.phase.Reached(step.to) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.advance(step.from, step.to, step.fn); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var handler http.Handler
	err := p.advance(PhaseAliasesReady, PhaseApplicationReady, func() (err error) {
		handler, err = p.construct()
		return err
	})
	if err != nil {
		return nil, err
	}
	return handler, nil
}

// 调用工厂，工厂 panic 也视为构造失败
func (p *Procedure) construct() (handler http.Handler, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("application factory panicked: %v", r)
		}
	}()

	handler, err = p.opts.Factory(p.opts.Bridge.Paths())
	if err != nil {
		return nil, errors.Wrap(err, "failed to construct application")
	}
	if handler == nil {
		return nil, errors.New("application factory returned a nil handler")
	}
	return handler, nil
}

func (p *Procedure) advance(from, to Phase, fn func() error) error {
	if err := p.phase.transition(from, to); err != nil {
		return err
	}
	if err := fn(); err != nil {
		log.WithError(err).WithField("phase", p.phase).Error("bootstrap step failed")
		return err
	}

	p.phase = to
	log.WithField("phase", to).Info("bootstrap phase reached")
	if p.opts.OnPhase != nil {
		p.opts.OnPhase(to)
	}
	return nil
}
