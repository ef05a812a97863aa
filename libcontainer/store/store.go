// store 包负责解析具名的持久化存储（volume）
// volume 是宿主机上 volumes 根目录下的一个目录，容器重启、函数重新部署后依然存在
// volume 名称的注册表保存在 bolt 数据库中，同一个名称总是解析到同一个目录
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/containerd/errdefs"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

// volume 不存在时 Resolve 的行为
type Policy int

const (
	// volume 必须已经存在
	MustExist Policy = iota
	// volume 不存在时创建一个空的 volume
	CreateIfMissing
)

func (p Policy) String() string {
	if p == CreateIfMissing {
		return "create-if-missing"
	}
	return "must-exist"
}

// volume 不存在且不允许创建
var ErrStoreNotFound = errors.Wrap(errdefs.ErrNotFound, "store not found")

var volumesBucket = []byte("volumes")

var nameRE = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,63}$`)

// volume 的持久化记录
type Volume struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"createdAt"`
}

// Registry 维护 volume 名称到宿主机目录的映射
type Registry struct {
	db   *bolt.DB
	root string
}

// 打开（或创建）位于 dbPath 的注册表数据库，volume 目录创建在 root 下
func Open(dbPath, root string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create db dir")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create volumes root")
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 30 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open bolt db")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(volumesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create bucket")
	}

	return &Registry{db: db, root: root}, nil
}

// 解析名为 name 的 volume，policy 允许时不存在则创建
// 如果 volume 目录在外部被删除，这里会重新创建它
func (r *Registry) Resolve(name string, policy Policy) (*Volume, error) {
	if !nameRE.MatchString(name) {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "invalid volume name %q", name)
	}

	var vol Volume
	created := false
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(volumesBucket)
		if data := b.Get([]byte(name)); data != nil {
			return json.Unmarshal(data, &vol)
		}
		if policy != CreateIfMissing {
			return errors.Wrapf(ErrStoreNotFound, "volume %s", name)
		}

		vol = Volume{
			Name:      name,
			Path:      filepath.Join(r.root, name),
			CreatedAt: time.Now().UTC(),
		}
		data, err := json.Marshal(&vol)
		if err != nil {
			return errors.Wrap(err, "failed to marshal volume")
		}
		created = true
		return b.Put([]byte(name), data)
	})
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(vol.Path, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create volume dir %s", vol.Path)
	}
	if created {
		log.WithFields(log.Fields{"volume": name, "path": vol.Path}).Info("created volume")
	}
	return &vol, nil
}

// 按名称排序返回所有的 volume
func (r *Registry) List() ([]*Volume, error) {
	var vols []*Volume
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(volumesBucket).ForEach(func(k, v []byte) error {
			var vol Volume
			if err := json.Unmarshal(v, &vol); err != nil {
				return errors.Wrapf(err, "corrupt record for volume %s", k)
			}
			vols = append(vols, &vol)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(vols, func(i, j int) bool { return vols[i].Name < vols[j].Name })
	return vols, nil
}

// 关闭数据库
func (r *Registry) Close() error {
	return r.db.Close()
}
