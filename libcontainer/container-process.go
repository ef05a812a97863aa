package libcontainer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	log "github.com/sirupsen/logrus"

	"m-restorer/libcontainer/config"
	"m-restorer/libcontainer/constant"
)

// 生成一个容器进程的句柄
// 该容器进程将运行 m-restorer init ，并拥有新的 UTS、PID、Mount、IPC namespace
// 容器需要对外提供 web 服务，因此不创建新的 NET namespace
func newContainerProcess(conf *config.Config, output io.Writer) (*exec.Cmd, *os.File, error) {
	// 创建一个匿名管道用于传递配置，readPipe 和 writePipe 分别传递给子进程和父进程
	readPipe, writePipe, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("new pipe error: %v", err)
	}

	// 该进程会调用符号链接 /proc/self/exe，也就是 m-restorer 这个可执行文件，并传递参数 init
	args := []string{"init"}
	if log.IsLevelEnabled(log.DebugLevel) {
		args = append([]string{"--debug"}, args...)
	}
	cmd := exec.Command("/proc/self/exe", args...)

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWUTS | syscall.CLONE_NEWPID | syscall.CLONE_NEWNS |
			syscall.CLONE_NEWIPC,
		// run 进程退出时容器进程也随之退出
		Pdeathsig: syscall.SIGKILL,
	}

	cmd.Stdout = output
	cmd.Stderr = output

	// 将 readPipe 通过子进程的 cmd.ExtraFile 传递给子进程
	cmd.ExtraFiles = []*os.File{readPipe}

	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=%s", constant.ENV_CONTAINER_ID, conf.ID),
		fmt.Sprintf("%s=%s", constant.ENV_FUNCTION_NAME, conf.Function),
	)

	return cmd, writePipe, nil
}

// 通过匿名管道将容器配置发送给子进程
func sendInitConfig(conf *config.Config, writePipe *os.File) error {
	defer writePipe.Close()

	log.Debugf("Send config of container %s to init", conf.ID)
	if err := json.NewEncoder(writePipe).Encode(conf); err != nil {
		return fmt.Errorf("failed to send config to init: %v", err)
	}
	return nil
}

// 容器内的 init 进程从管道中读取配置
func ReadInitConfig(pipe io.Reader) (*config.Config, error) {
	var conf config.Config
	if err := json.NewDecoder(pipe).Decode(&conf); err != nil {
		return nil, fmt.Errorf("failed to read config from pipe: %v", err)
	}
	return &conf, nil
}
