package constants

type contextKey string

const (
	TxKey          contextKey = "tx"
	PoolKey        contextKey = "pool"
	LoggerKey      contextKey = "logger"
	ParamsKey      contextKey = "params"
	TenantFrameKey contextKey = "tenant_frame"
	PrincipalKey   contextKey = "principal"
	PartitionKey   contextKey = "partition"
)
