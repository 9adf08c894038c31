package health

import (
	"log/slog"
	"sync"
	"time"
)

// State 是系统的健康状态
type State int

const (
	StateHealthy State = iota
	StateDegraded
)

func (s State) String() string {
	if s == StateHealthy {
		return "healthy"
	}
	return "degraded"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Report 是一次健康检查的结果
type Report struct {
	State     State             `json:"status"`
	Probes    map[string]string `json:"probes"`
	CheckedAt time.Time         `json:"checkedAt"`
}

// statusManager 线程安全地保存最近一次检查的结果，只在状态变化时记录日志
type statusManager struct {
	mu     sync.RWMutex
	last   Report
	logger *slog.Logger
}

func (sm *statusManager) get() Report {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.last
}

func (sm *statusManager) update(r Report) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.last.State != r.State {
		if r.State == StateHealthy {
			sm.logger.Info("健康检查: 系统状态 -> [健康]", "component", "health")
		} else {
			sm.logger.Warn("健康检查: 系统状态 -> [降级]", "component", "health", "probes", r.Probes)
		}
	}
	sm.last = r
}
