package constant

const (
	// 容器所属的函数名称
	ENV_FUNCTION_NAME = "M_RESTORER_FUNCTION"

	// 容器 ID，init 进程据此记录 bootstrap 阶段
	ENV_CONTAINER_ID = "M_RESTORER_CONTAINER_ID"
)
