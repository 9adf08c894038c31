// Package metrics 定义业务操作计数器。
// 所有方法对 nil 接收者安全，未启用指标时服务层可以直接传 nil。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rollback_tracker"

// Metrics 持有全部计数器
type Metrics struct {
	listsCreated  prometheus.Counter
	listsDeleted  prometheus.Counter
	registrations *prometheus.CounterVec
	submissions   *prometheus.CounterVec
	withdrawals   *prometheus.CounterVec
	resets        prometheus.Counter
}

// New 在给定的注册器上创建计数器。reg 为 nil 时使用默认注册器。
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		listsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lists_created_total",
			Help:      "lists created",
		}),
		listsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lists_deleted_total",
			Help:      "lists deleted together with their participants and rollbacks",
		}),
		registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "participant registrations by outcome",
		}, []string{"outcome"}),
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "rollback submissions by outcome",
		}, []string{"outcome"}),
		withdrawals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawals_total",
			Help:      "rollback withdrawals by outcome",
		}, []string{"outcome"}),
		resets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resets_total",
			Help:      "list-wide rollback resets",
		}),
	}
}

func (m *Metrics) ListCreated() {
	if m != nil {
		m.listsCreated.Inc()
	}
}

func (m *Metrics) ListDeleted() {
	if m != nil {
		m.listsDeleted.Inc()
	}
}

// Registration 记录一次登记，outcome 取 registered 或 already_registered
func (m *Metrics) Registration(outcome string) {
	if m != nil {
		m.registrations.WithLabelValues(outcome).Inc()
	}
}

// Submission 记录一次提交，outcome 取 created 或 replaced
func (m *Metrics) Submission(outcome string) {
	if m != nil {
		m.submissions.WithLabelValues(outcome).Inc()
	}
}

// Withdrawal 记录一次撤回，outcome 取 removed 或 nothing_to_remove
func (m *Metrics) Withdrawal(outcome string) {
	if m != nil {
		m.withdrawals.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Reset() {
	if m != nil {
		m.resets.Inc()
	}
}
