// Package health 定期探测数据库和Redis，并为 /healthz 提供结果
package health

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/SlpAus/rollback-tracker/pkg/lifecycle"
)

const (
	checkInterval = 15 * time.Second
	pingTimeout   = 2 * time.Second
)

// Probe 是一个依赖的探测函数，返回 nil 表示可用
type Probe func(ctx context.Context) error

// Checker 持有全部探测函数和最近一次的检查结果
type Checker struct {
	probes map[string]Probe
	status *statusManager
	now    func() time.Time
}

// NewChecker 创建 Checker。初始状态为健康，直到第一次检查完成。
func NewChecker(probes map[string]Probe, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Checker{
		probes: probes,
		status: &statusManager{logger: logger},
		now:    time.Now,
	}
}

// Check 立即执行所有探测并更新状态
func (c *Checker) Check(ctx context.Context) Report {
	r := Report{
		State:     StateHealthy,
		Probes:    make(map[string]string, len(c.probes)),
		CheckedAt: c.now().UTC(),
	}
	for name, probe := range c.probes {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := probe(pingCtx)
		cancel()
		if err != nil {
			r.State = StateDegraded
			r.Probes[name] = err.Error()
			continue
		}
		r.Probes[name] = "ok"
	}
	c.status.update(r)
	return r
}

// Last 返回最近一次检查的结果
func (c *Checker) Last() Report {
	return c.status.get()
}

// Run 周期性地执行检查，直到收到停机信号
func (c *Checker) Run(h *lifecycle.Handle) {
	for {
		c.Check(h.Ctx())
		if err := h.Sleep(checkInterval); err != nil {
			return
		}
	}
}
