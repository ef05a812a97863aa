// bridge 包维护应用可见的相对路径与持久化存储子目录之间的映射
package bridge

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"m-restorer/libcontainer/config"
)

// 路径别名存在，但指向了错误的目标
var ErrAliasDrift = errors.Wrap(errdefs.ErrFailedPrecondition, "alias points to the wrong target")

// 符号名称
const (
	Uploads   = "uploads"
	Processed = "processed"
)

// Alias 是一个路径别名
type Alias struct {
	// 符号名称，应用通过它查找绝对路径
	Name string

	// 相对于工作目录的链接路径
	Link string

	// 相对于挂载点的目标子目录
	Target string
}

// 固定的映射关系，修改它属于破坏性的配置变更
var DefaultAliases = []Alias{
	{Name: Uploads, Link: "temp_uploads", Target: "uploads"},
	{Name: Processed, Link: "processed_images", Target: "processed"},
}

// Paths 是符号名称到绝对路径的映射，传递给 web 应用
type Paths map[string]string

// 查找符号名称对应的绝对路径
func (p Paths) Get(name string) (string, error) {
	dir, ok := p[name]
	if !ok {
		return "", errors.Wrapf(errdefs.ErrNotFound, "no path for %q", name)
	}
	return dir, nil
}

type Bridge struct {
	mountPoint string
	aliases    []Alias
	drift      string
}

// 创建 Bridge，检查映射是否完整、唯一并且都是相对路径
func New(mountPoint string, aliases []Alias, drift string) (*Bridge, error) {
	if !filepath.IsAbs(mountPoint) {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "mount point %q is not absolute", mountPoint)
	}
	if drift != config.AliasDriftFail && drift != config.AliasDriftTolerate {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "unknown alias drift policy %q", drift)
	}

	names := make(map[string]bool, len(aliases))
	links := make(map[string]bool, len(aliases))
	for _, a := range aliases {
		if a.Name == "" || names[a.Name] {
			return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "alias name %q is empty or duplicated", a.Name)
		}
		if !isLocal(a.Link) || links[filepath.Clean(a.Link)] {
			return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "link %q must be a unique relative path", a.Link)
		}
		if !isLocal(a.Target) {
			return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "target %q must be relative to the mount point", a.Target)
		}
		names[a.Name] = true
		links[filepath.Clean(a.Link)] = true
	}

	return &Bridge{
		mountPoint: filepath.Clean(mountPoint),
		aliases:    aliases,
		drift:      drift,
	}, nil
}

func (b *Bridge) MountPoint() string {
	return b.mountPoint
}

func (b *Bridge) Aliases() []Alias {
	return b.aliases
}

// 返回别名目标的绝对路径
func (b *Bridge) TargetPath(a Alias) string {
	return filepath.Join(b.mountPoint, a.Target)
}

// 返回每个符号名称对应的绝对路径
func (b *Bridge) Paths() Paths {
	paths := make(Paths, len(b.aliases))
	for _, a := range b.aliases {
		paths[a.Name] = b.TargetPath(a)
	}
	return paths
}

// 在挂载点下创建所有的目标子目录，已经存在时不报错
func (b *Bridge) EnsureDirectories() error {
	for _, a := range b.aliases {
		dir := b.TargetPath(a)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create dir %s", dir)
		}
		log.Debugf("persistent dir %s ready", dir)
	}
	return nil
}

// 在工作目录下创建所有的路径别名
func (b *Bridge) EnsureAliases(workDir string) error {
	for _, a := range b.aliases {
		link := filepath.Join(workDir, a.Link)
		if err := ensureAlias(link, b.TargetPath(a), b.drift); err != nil {
			return errors.Wrapf(err, "failed to create alias %s", a.Name)
		}
	}
	return nil
}

// 创建一个指向 target 的符号链接 link
// link 已经存在时不做任何修改：
//   - 指向 target 的符号链接：什么都不做
//   - 指向其他位置的符号链接：根据 drift 策略报错或告警
//   - 普通文件或目录：只告警，应用会拿到一个不可用的路径
func ensureAlias(link, target, drift string) error {
	for {
		info, err := os.Lstat(link)
		if os.IsNotExist(err) {
			err = os.Symlink(target, link)
			if os.IsExist(err) {
				// 与其他进程竞争创建，重新检查一遍
				continue
			}
			if err != nil {
				return errors.Wrapf(err, "symlink %s -> %s", link, target)
			}
			log.Infof("alias %s -> %s created", link, target)
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "lstat %s", link)
		}

		if info.Mode()&os.ModeSymlink == 0 {
			log.Warnf("%s already exists and is not an alias, leaving it untouched", link)
			return nil
		}

		current, err := os.Readlink(link)
		if err != nil {
			return errors.Wrapf(err, "readlink %s", link)
		}
		if sameTarget(link, current, target) {
			log.Debugf("alias %s -> %s already exists", link, target)
			return nil
		}
		if drift == config.AliasDriftTolerate {
			log.Warnf("alias %s points to %s instead of %s, tolerating", link, current, target)
			return nil
		}
		return errors.Wrapf(ErrAliasDrift, "%s -> %s, expected %s", link, current, target)
	}
}

// 判断链接是否指向 target，相对链接按链接所在目录解析
// 两者都存在时比较实际的文件，链接悬空时退回到路径比较
func sameTarget(link, current, target string) bool {
	if !filepath.IsAbs(current) {
		current = filepath.Join(filepath.Dir(link), current)
	}
	if filepath.Clean(current) == filepath.Clean(target) {
		return true
	}
	linkInfo, err := os.Stat(link)
	if err != nil {
		return false
	}
	targetInfo, err := os.Stat(target)
	if err != nil {
		return false
	}
	return os.SameFile(linkInfo, targetInfo)
}

func isLocal(p string) bool {
	if p == "" || filepath.IsAbs(p) {
		return false
	}
	clean := filepath.Clean(p)
	return clean != "." && clean != ".." && !strings.HasPrefix(clean, "../")
}
