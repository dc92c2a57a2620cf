// Package main 提供监控引擎服务的主入口点
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/AnalyseDeCircuit/opspulse/api/handlers"
	"github.com/AnalyseDeCircuit/opspulse/internal/alerts"
	"github.com/AnalyseDeCircuit/opspulse/internal/collectors"
	"github.com/AnalyseDeCircuit/opspulse/internal/config"
	"github.com/AnalyseDeCircuit/opspulse/internal/monitor"
	"github.com/AnalyseDeCircuit/opspulse/internal/websocket"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting opspulse server...")

	cfg := config.FromEnv()

	mon := monitor.New(cfg, nil)

	// WebSocket 事件推送
	hub := websocket.NewHub(mon.Bus())

	// 通知渠道：日志渠道兜底，仪表盘推送常开，配置了 WEBHOOK_URL 时加挂 webhook
	notifier := mon.Alerts().Notifier()
	notifier.Register(&alerts.LogChannel{})
	notifier.Register(websocket.NewDashboardChannel(hub))
	if url := os.Getenv("WEBHOOK_URL"); url != "" {
		notifier.Register(alerts.NewWebhookChannel(url))
		log.Println("Webhook notification channel registered")
	}

	// 默认的本机性能探针
	mon.Health().SetPerformanceProvider(collectors.NewSystemPerformanceProvider(mon.Store()))

	if err := mon.Start(); err != nil {
		log.Fatal("Failed to start monitor: ", err)
	}

	api := handlers.New(mon, hub)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// 启动服务器（非阻塞）
	go func() {
		log.Printf("Server starting on %s...\n", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start: ", err)
		}
	}()

	// 通知 systemd 服务已就绪（非 systemd 环境下是 no-op）
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Printf("sd_notify failed: %v", err)
	}

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// 先断开推送客户端，再停引擎，最后关 HTTP 服务器
	hub.Shutdown()
	mon.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited gracefully")
}
