package bootstrap

import (
	"github.com/containerd/errdefs"
	"github.com/pkg/errors"
)

// Phase 是 bootstrap 所处的阶段
type Phase string

const (
	PhaseUninitialized    Phase = "uninitialized"
	PhaseDirectoriesReady Phase = "directories-ready"
	PhaseAliasesReady     Phase = "aliases-ready"
	PhaseApplicationReady Phase = "application-ready"
)

var ErrInvalidTransition = errors.Wrap(errdefs.ErrFailedPrecondition, "invalid bootstrap transition")

// 每个阶段唯一允许的下一个阶段
var nextPhase = map[Phase]Phase{
	PhaseUninitialized:    PhaseDirectoriesReady,
	PhaseDirectoriesReady: PhaseAliasesReady,
	PhaseAliasesReady:     PhaseApplicationReady,
}

// 阶段在流程中的位置，用于判断某一步是否已经完成
func (p Phase) order() int {
	switch p {
	case PhaseUninitialized:
		return 0
	case PhaseDirectoriesReady:
		return 1
	case PhaseAliasesReady:
		return 2
	case PhaseApplicationReady:
		return 3
	}
	return -1
}

// 是否已经到达（或越过）阶段 other
func (p Phase) Reached(other Phase) bool {
	return p.order() >= other.order()
}

func (p Phase) transition(old, new Phase) error {
	if p != old {
		return errors.Wrapf(ErrInvalidTransition, "mismatched phase: %s (expecting: %s)", p, old)
	}
	if nextPhase[old] != new {
		return errors.Wrapf(ErrInvalidTransition, "cannot transition from %s to %s", old, new)
	}
	return nil
}
