package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 编排核心的指标收集器。所有记录方法对 nil 接收者安全，
// 未配置指标的组件可以直接携带 nil *Collector。
type Collector struct {
	// 路由指标
	messagesSentTotal   *prometheus.CounterVec
	deliveriesTotal     *prometheus.CounterVec
	deliveryDuration    *prometheus.HistogramVec
	subscriptionsActive prometheus.Gauge

	// 工作流指标
	workflowRunsTotal    *prometheus.CounterVec
	workflowStepDuration *prometheus.HistogramVec

	// 协作指标
	delegationsTotal   *prometheus.CounterVec
	delegationDuration prometheus.Histogram

	// 回放存储指标
	experiencesTotal *prometheus.CounterVec
	replayStoreSize  prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.messagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total number of messages sent through the router",
		},
		[]string{"type", "priority"},
	)

	c.deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total number of delivery attempts by outcome",
		},
		[]string{"path", "outcome"}, // path: direct, subscription
	)

	c.deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Message delivery fan-out duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	c.subscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions_active",
			Help:      "Number of active subscriptions",
		},
	)

	c.workflowRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Total number of workflow executions by final status",
		},
		[]string{"workflow", "status"},
	)

	c.workflowStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_step_duration_seconds",
			Help:      "Workflow step execution duration in seconds",
			Buckets:   []float64{0.005, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"workflow", "step"},
	)

	c.delegationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delegations_total",
			Help:      "Total number of task delegations by outcome",
		},
		[]string{"outcome"}, // success, timeout, no_agents
	)

	c.delegationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delegation_duration_seconds",
			Help:      "End-to-end task delegation duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60},
		},
	)

	c.experiencesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "experiences_recorded_total",
			Help:      "Total number of experiences recorded to the replay store",
		},
		[]string{"type", "outcome"},
	)

	c.replayStoreSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "replay_store_size",
			Help:      "Current number of entries in the replay store",
		},
	)

	return c
}

// RecordMessageSent 记录一次消息发送
func (c *Collector) RecordMessageSent(msgType, priority string) {
	if c == nil {
		return
	}
	c.messagesSentTotal.WithLabelValues(msgType, priority).Inc()
}

// RecordDelivery 记录一次投递结果。path 为 direct 或 subscription。
func (c *Collector) RecordDelivery(path, outcome string) {
	if c == nil {
		return
	}
	c.deliveriesTotal.WithLabelValues(path, outcome).Inc()
}

// RecordDeliveryDuration 记录一次投递扇出耗时
func (c *Collector) RecordDeliveryDuration(msgType string, d time.Duration) {
	if c == nil {
		return
	}
	c.deliveryDuration.WithLabelValues(msgType).Observe(d.Seconds())
}

// SetActiveSubscriptions 更新活跃订阅数
func (c *Collector) SetActiveSubscriptions(n int) {
	if c == nil {
		return
	}
	c.subscriptionsActive.Set(float64(n))
}

// RecordWorkflowRun 记录一次工作流执行
func (c *Collector) RecordWorkflowRun(workflow, status string) {
	if c == nil {
		return
	}
	c.workflowRunsTotal.WithLabelValues(workflow, status).Inc()
}

// RecordWorkflowStep 记录一次步骤执行耗时
func (c *Collector) RecordWorkflowStep(workflow, step string, d time.Duration) {
	if c == nil {
		return
	}
	c.workflowStepDuration.WithLabelValues(workflow, step).Observe(d.Seconds())
}

// RecordDelegation 记录一次任务委派结果
func (c *Collector) RecordDelegation(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.delegationsTotal.WithLabelValues(outcome).Inc()
	c.delegationDuration.Observe(d.Seconds())
}

// RecordExperience 记录一次经验写入
func (c *Collector) RecordExperience(expType string, success bool) {
	if c == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	c.experiencesTotal.WithLabelValues(expType, outcome).Inc()
}

// SetReplayStoreSize 更新回放存储当前条目数
func (c *Collector) SetReplayStoreSize(n int) {
	if c == nil {
		return
	}
	c.replayStoreSize.Set(float64(n))
}
