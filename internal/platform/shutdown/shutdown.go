// Package shutdown 编排应用程序的优雅停机流程
package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SlpAus/rollback-tracker/pkg/lifecycle"
)

// backgroundTimeout 是等待后台服务退出的最长时间
const backgroundTimeout = 5 * time.Second

// Closer 是停机最后阶段需要释放的资源，例如数据库和Redis连接
type Closer struct {
	Name  string
	Close func() error
}

// Coordinator 负责编排停机流程：HTTP服务器、后台服务、最后是外部资源。
type Coordinator struct {
	Background  *lifecycle.Manager
	HTTPTimeout time.Duration
	closers     []Closer
	logger      *slog.Logger
}

// NewCoordinator 创建一个新的停机协调器
func NewCoordinator(background *lifecycle.Manager, httpTimeout time.Duration, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Coordinator{
		Background:  background,
		HTTPTimeout: httpTimeout,
		logger:      logger,
	}
}

// OnClose 登记一个在停机最后阶段关闭的资源，按登记的相反顺序关闭
func (c *Coordinator) OnClose(name string, fn func() error) {
	c.closers = append(c.closers, Closer{Name: name, Close: fn})
}

// Serve 启动HTTP服务器并阻塞，直到收到停机信号、ctx 被取消或服务器异常退出，然后执行停机流程。
func (c *Coordinator) Serve(ctx context.Context, server *http.Server) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	serveErr := make(chan error, 1)
	go func() {
		c.logger.Info("服务器开始监听", "component", "server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case sig := <-sigChan:
		c.logger.Info("收到关闭信号，开始优雅停机", "component", "shutdown", "signal", sig.String())
	case <-ctx.Done():
		c.logger.Info("上下文已取消，开始优雅停机", "component", "shutdown")
	case err, ok := <-serveErr:
		if ok {
			runErr = err
			c.logger.Error("服务器异常退出", "component", "server", "error", err)
		}
	}

	c.shutdown(server)
	<-serveErr
	return runErr
}

func (c *Coordinator) shutdown(server *http.Server) {
	// 1. 关闭HTTP服务器，允许正在进行的请求完成
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.HTTPTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		c.logger.Error("HTTP服务器关闭错误", "component", "shutdown", "error", err)
	} else {
		c.logger.Info("HTTP服务器已关闭", "component", "shutdown")
	}

	// 2. 停止后台服务
	if c.Background != nil {
		c.Background.Shutdown()
		if remaining := c.Background.WaitWithTimeout(backgroundTimeout); len(remaining) > 0 {
			c.logger.Warn("部分后台服务未能按时退出", "component", "shutdown", "services", remaining)
		}
	}

	// 3. 释放外部资源
	for i := len(c.closers) - 1; i >= 0; i-- {
		cl := c.closers[i]
		if err := cl.Close(); err != nil {
			c.logger.Error("关闭资源失败", "component", "shutdown", "resource", cl.Name, "error", err)
			continue
		}
		c.logger.Info("资源已关闭", "component", "shutdown", "resource", cl.Name)
	}
	c.logger.Info("优雅停机完成", "component", "shutdown")
}
