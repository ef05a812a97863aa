package config

import (
	"encoding/json"
	"os"
	"path"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/pkg/errors"

	"m-restorer/libcontainer/constant"
)

// 将容器的 Config 持久化到状态目录下
// 先写临时文件再 rename，避免读者看到写了一半的文件
func RecordContainerConfig(conf *Config) error {
	if err := os.MkdirAll(conf.StateDir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create state dir %s", conf.StateDir)
	}

	data, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	target := path.Join(conf.StateDir, constant.ConfigName)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %s", tmp)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "failed to rename %s", tmp)
	}
	return nil
}

// 根据容器 ID 读取容器的 Config
func GetConfigFromID(id string) (*Config, error) {
	configPath := path.Join(constant.StatePath, id, constant.ConfigName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errdefs.ErrNotFound, "container %s", id)
		}
		return nil, errors.Wrapf(err, "failed to read %s", configPath)
	}

	var conf Config
	if err := json.Unmarshal(data, &conf); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal %s", configPath)
	}
	return &conf, nil
}

// 读取状态目录下所有容器的 Config，无法解析的目录会被跳过并返回给调用者
func ListContainerConfigs() ([]*Config, map[string]error, error) {
	entries, err := os.ReadDir(constant.StatePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, errors.Wrapf(err, "read dir %s", constant.StatePath)
	}

	confs := make([]*Config, 0, len(entries))
	broken := make(map[string]error)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		conf, err := GetConfigFromID(entry.Name())
		if err != nil {
			broken[entry.Name()] = err
			continue
		}
		confs = append(confs, conf)
	}
	return confs, broken, nil
}

// 根据容器名称查找容器 ID
func GetIDFromName(name string) (string, error) {
	confs, _, err := ListContainerConfigs()
	if err != nil {
		return "", err
	}
	for _, conf := range confs {
		if conf.Name == name {
			return conf.ID, nil
		}
	}
	return "", errors.Wrapf(errdefs.ErrNotFound, "container named %s", name)
}

// 根据容器 ID 的前缀查找容器 ID，前缀必须唯一
func GetIDFromPrefix(prefix string) (string, error) {
	if prefix == "" {
		return "", errors.Wrap(errdefs.ErrInvalidArgument, "empty container id prefix")
	}
	confs, _, err := ListContainerConfigs()
	if err != nil {
		return "", err
	}

	var matched []string
	for _, conf := range confs {
		if strings.HasPrefix(conf.ID, prefix) {
			matched = append(matched, conf.ID)
		}
	}
	switch len(matched) {
	case 0:
		return "", errors.Wrapf(errdefs.ErrNotFound, "container with id prefix %s", prefix)
	case 1:
		return matched[0], nil
	default:
		return "", errors.Wrapf(errdefs.ErrConflict, "id prefix %s matches %d containers", prefix, len(matched))
	}
}

// 先按名称查找，找不到再按 ID 前缀查找
func GetIDFromNameOrPrefix(nameOrPrefix string) (string, error) {
	if id, err := GetIDFromName(nameOrPrefix); err == nil {
		return id, nil
	}
	return GetIDFromPrefix(nameOrPrefix)
}

// 更新容器的 bootstrap 阶段
func UpdateContainerPhase(id string, phase string) error {
	conf, err := GetConfigFromID(id)
	if err != nil {
		return err
	}
	conf.Phase = phase
	return RecordContainerConfig(conf)
}

// 删除容器的状态信息
func DeleteContainerState(conf *Config) {
	_ = os.RemoveAll(conf.StateDir)
}
