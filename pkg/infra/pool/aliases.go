package pool

// 旧名称的别名，manager 与 global 两侧 API 共用同一组类型。
type (
	PoolType   = Type
	PoolConfig = Config
	Info       = PoolInfo
)
