// =============================================================================
// 📦 AgentCore 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"github.com/civant/agentcore/collab"
	"github.com/civant/agentcore/replay"
	"github.com/civant/agentcore/router"
	"github.com/civant/agentcore/workflow"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Log:      DefaultLogConfig(),
		Metrics:  DefaultMetricsConfig(),
		Router:   router.DefaultConfig(),
		Replay:   replay.DefaultConfig(),
		Workflow: workflow.DefaultConfig(),
		Collab:   collab.DefaultConfig(),
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "agentcore",
	}
}
