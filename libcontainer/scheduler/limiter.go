package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/containerd/errdefs"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// 所有的容器槽位都被占用
var ErrNoSlot = errors.Wrap(errdefs.ErrUnavailable, "no free container slot")

const defaultPollInterval = 200 * time.Millisecond

// Limiter 限制同一个函数同时存活的容器数量
// 每个槽位对应一个加了 flock 的文件，持有者崩溃后内核会自动释放锁
type Limiter struct {
	dir   string
	name  string
	slots int

	// 所有槽位都被占用时的重试间隔
	PollInterval time.Duration
}

// Slot 是一个被占用的容器槽位
type Slot struct {
	Index int
	file  *os.File
}

func NewLimiter(dir, name string, slots int) (*Limiter, error) {
	if slots < 1 {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "slots must be at least 1, got %d", slots)
	}
	if name == "" {
		return nil, errors.Wrap(errdefs.ErrInvalidArgument, "limiter name is empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create lock dir %s", dir)
	}
	return &Limiter{
		dir:          dir,
		name:         name,
		slots:        slots,
		PollInterval: defaultPollInterval,
	}, nil
}

// 尝试占用一个空闲槽位，没有空闲槽位时立即返回 ErrNoSlot
func (l *Limiter) TryAcquire() (*Slot, error) {
	for i := 0; i < l.slots; i++ {
		slot, err := l.tryLock(i)
		if err != nil {
			return nil, err
		}
		if slot != nil {
			log.WithFields(log.Fields{"function": l.name, "slot": i}).Debug("container slot acquired")
			return slot, nil
		}
	}
	return nil, errors.Wrapf(ErrNoSlot, "function %s has %d slot(s)", l.name, l.slots)
}

// 占用一个槽位，所有槽位都被占用时一直等待，直到有槽位释放或 ctx 结束
func (l *Limiter) Acquire(ctx context.Context) (*Slot, error) {
	ticker := time.NewTicker(l.PollInterval)
	defer ticker.Stop()

	waiting := false
	for {
		slot, err := l.TryAcquire()
		if err == nil {
			return slot, nil
		}
		if !errors.Is(err, ErrNoSlot) {
			return nil, err
		}
		if !waiting {
			log.Infof("all %d slot(s) of function %s are busy, waiting", l.slots, l.name)
			waiting = true
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "waiting for a slot of function %s", l.name)
		case <-ticker.C:
		}
	}
}

func (l *Limiter) lockPath(index int) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s.%d.lock", l.name, index))
}

// 非阻塞地锁住第 index 个槽位，槽位被占用时返回 nil
func (l *Limiter) tryLock(index int) (*Slot, error) {
	path := l.lockPath(index)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, errors.Wrapf(err, "open lock file %s", path)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "flock %s", path)
	}
	return &Slot{Index: index, file: f}, nil
}

// 释放槽位，可以多次调用
func (s *Slot) Release() {
	if s == nil || s.file == nil {
		return
	}
	if err := unix.Flock(int(s.file.Fd()), unix.LOCK_UN); err != nil {
		log.Debugf("flock unlock failed: %v", err)
	}
	if err := s.file.Close(); err != nil {
		log.Debugf("lock file close failed: %v", err)
	}
	s.file = nil
}
