package config

import (
	"crypto/sha256"
	"fmt"
	"path"
	"time"

	"golang.org/x/exp/rand"

	"m-restorer/libcontainer/constant"
)

// 根据函数的 Descriptor 生成容器的 Config 配置
func CreateConfig(desc *Descriptor, name string) *Config {
	// 容器创建时间
	now := time.Now()
	createdTime := now.Format("2006-01-02 15:04:05")

	// 如果没有指定容器名称，则随机生成一个
	if name == "" {
		name = generateContainerName()
	}

	// 生成容器ID
	containerID := generateContainerID(fmt.Sprintf("%s%s%d", desc.Name, name, now.UnixNano()))

	mounts := make([]Mount, len(desc.Volumes))
	copy(mounts, desc.Volumes)

	conf := &Config{
		Status:      StatusCreating,
		ID:          containerID,
		Name:        name,
		Function:    desc.Name,
		CreatedTime: createdTime,
		Timeout:     desc.Timeout,
		WorkDir:     desc.WorkDir,
		Listen:      desc.Listen,
		AliasDrift:  desc.AliasDrift,
		Mounts:      mounts,
	}
	// 将状态信息持久化到 /run/m-restorer/[id] 目录下
	conf.StateDir = path.Join(constant.StatePath, containerID)
	conf.LogPath = path.Join(conf.StateDir, constant.LogFileName)

	if !desc.Resources.Empty() {
		conf.Cgroup = &Cgroup{
			Name:      containerID[:12],
			Path:      path.Join(constant.CgroupRootPath, containerID[:12]),
			Resources: desc.Resources,
		}
	}

	return conf
}

// 生成容器ID
func generateContainerID(input string) string {
	hash := sha256.New()
	hash.Write([]byte(input))
	return fmt.Sprintf("%x", hash.Sum(nil))
}

// 预定义的形容词列表
var adjectives = []string{
	"admiring", "adoring", "affectionate", "agitated", "amazing",
	"angry", "awesome", "blissful", "boring", "brave",
	"charming", "clever", "cool", "compassionate", "competent",
	"confident", "cranky", "crazy", "dazzling", "determined",
}

// 预定义的名词列表
var nouns = []string{
	"albattani", "allen", "almeida", "agnesi", "archimedes",
	"ardinghelli", "aryabhata", "austin", "babbage", "banach",
	"banzai", "bardeen", "bartik", "bassi", "beaver",
	"bell", "benz", "bhabha", "bhaskara", "blackwell",
}

// 生成随机容器名称
func generateContainerName() string {
	rand.Seed(uint64(time.Now().UnixNano()))
	adj := adjectives[rand.Intn(len(adjectives))]
	noun := nouns[rand.Intn(len(nouns))]
	return fmt.Sprintf("%s_%s", adj, noun)
}
