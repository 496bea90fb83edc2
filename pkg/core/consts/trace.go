package consts

type contextKey string

const (
	// TraceKey 请求链路 ID 在 context/fiber locals 中的键
	TraceKey contextKey = "trace_id"
	// TraceHeaderName 上游透传链路 ID 的请求头
	TraceHeaderName = "X-Trace-Id"
)
