package scheduler

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"m-restorer/libcontainer/config"
)

// 找不到满足要求的 GPU，容器无法被调度
var ErrNoGPU = errors.Wrap(errdefs.ErrUnavailable, "no suitable gpu")

var nvidiaDeviceRE = regexp.MustCompile(`^nvidia[0-9]+$`)

// GPU 描述一块可用的 GPU
type GPU struct {
	// 设备节点，如 /dev/nvidia0
	Device string
	// 型号，读取不到时为空
	Model string
}

// 列出 devRoot 下的 NVIDIA 设备节点，并从 procRoot 中读取型号
func ListGPUs(devRoot, procRoot string) ([]GPU, error) {
	entries, err := os.ReadDir(devRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "read dir %s", devRoot)
	}

	var gpus []GPU
	for _, entry := range entries {
		if nvidiaDeviceRE.MatchString(entry.Name()) {
			gpus = append(gpus, GPU{Device: filepath.Join(devRoot, entry.Name())})
		}
	}

	models := readModels(procRoot)
	for i := range gpus {
		if i < len(models) {
			gpus[i].Model = models[i]
		}
	}
	return gpus, nil
}

// 从 /proc/driver/nvidia/gpus/*/information 中读取 Model 字段
func readModels(procRoot string) []string {
	infos, _ := filepath.Glob(filepath.Join(procRoot, "*", "information"))
	var models []string
	for _, info := range infos {
		f, err := os.Open(info)
		if err != nil {
			log.Debugf("open %s: %v", info, err)
			continue
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			key, value, ok := strings.Cut(scanner.Text(), ":")
			if ok && strings.TrimSpace(key) == "Model" {
				models = append(models, strings.TrimSpace(value))
				break
			}
		}
		f.Close()
	}
	return models
}

// 检查 GPU 需求能否被满足
// class 为空或 none 时不需要 GPU，any 表示任意一块 GPU，其他值按型号做大小写无关的子串匹配
func ProbeGPU(devRoot, procRoot, class string) (*GPU, error) {
	class = strings.TrimSpace(class)
	if class == "" || strings.EqualFold(class, config.GPUNone) {
		return nil, nil
	}

	gpus, err := ListGPUs(devRoot, procRoot)
	if err != nil {
		return nil, errors.Wrapf(ErrNoGPU, "probe failed: %v", err)
	}
	for i := range gpus {
		if strings.EqualFold(class, config.GPUAny) ||
			strings.Contains(strings.ToLower(gpus[i].Model), strings.ToLower(class)) {
			return &gpus[i], nil
		}
	}
	return nil, errors.Wrapf(ErrNoGPU, "gpu class %q requested, %d gpu(s) present", class, len(gpus))
}
