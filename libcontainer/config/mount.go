package config

// Mount 挂载配置
type Mount struct {
	// 持久化存储（volume）的名称
	Store string `json:"store"`

	// 源路径，volume 在宿主机上的绝对路径，由 store 解析后填入
	Source string `json:"source"`

	// 目标路径，在容器内的绝对路径，即挂载点
	Destination string `json:"destination"`
}
