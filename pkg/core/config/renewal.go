package config

// RenewalConfig 证书续期引擎配置
type RenewalConfig struct {
	// CronExpr 自动续期扫描的 cron 表达式（带秒字段），默认每天 02:30
	CronExpr string `yaml:"cron-expr" json:"cron_expr"`
	// BundleDir 证书材料落盘目录
	BundleDir string `yaml:"bundle-dir" json:"bundle_dir"`
	// Nameservers 传播检查使用的递归 DNS，host:port 格式
	Nameservers []string `yaml:"nameservers" json:"nameservers"`
	// PropagationIntervalSeconds 自动模式传播轮询间隔（秒）
	PropagationIntervalSeconds int `yaml:"propagation-interval-seconds" json:"propagation_interval_seconds"`
	// PropagationAttempts 自动模式轮询次数上限
	PropagationAttempts int `yaml:"propagation-attempts" json:"propagation_attempts"`
	// ManualPollIntervalSeconds 手动模式轮询间隔（秒）
	ManualPollIntervalSeconds int `yaml:"manual-poll-interval-seconds" json:"manual_poll_interval_seconds"`
	// RetentionMinutes 终态操作在注册表中的保留时长（分钟）
	RetentionMinutes int `yaml:"retention-minutes" json:"retention_minutes"`
}
