// Package main API Server 入口
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"golden-drift/internal/apiserver/goldentest"
	"golden-drift/internal/apiserver/scheduler"
	"golden-drift/internal/config"
	"golden-drift/internal/drift"
	"golden-drift/internal/shared/infra"
	"golden-drift/internal/shared/metrics"
	"golden-drift/internal/shared/model"
	"golden-drift/pkg/logging"
)

func main() {
	configDirFlag := flag.String("config", "", "配置文件目录（或 YAML 文件路径）")
	flag.Parse()

	if *configDirFlag != "" {
		dir := *configDirFlag
		if strings.HasSuffix(dir, ".yaml") || strings.HasSuffix(dir, ".yml") {
			dir = filepath.Dir(dir)
		}
		config.SetConfigDir(dir)
	}

	// 加载配置（自动加载 .env，根据 APP_ENV 选择配置文件）
	cfg := config.Load()

	log.Printf("Starting golden-drift API Server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化基础设施（存储、锁、告警总线、归档、回放客户端）
	inf, err := infra.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize infrastructure: %v", err)
	}
	defer inf.Close()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	calc := drift.NewCalculator(cfg.Drift.Schedule.RunHour)
	thresholds := model.Thresholds{
		MinSemanticSimilarity: cfg.Drift.Thresholds.MinSemanticSimilarity,
		MaxLatencyIncrease:    cfg.Drift.Thresholds.MaxLatencyIncrease,
		MaxCostIncrease:       cfg.Drift.Thresholds.MaxCostIncrease,
	}

	svc := goldentest.NewService(inf.Storage, goldentest.Options{
		Engine:            drift.NewEngine(nil),
		Calculator:        &calc,
		Locker:            inf.Locker,
		DefaultThresholds: &thresholds,
		Replayer:          inf.Replayer,
		TestCases:         inf.TestCases,
		Archive:           inf.Archive,
		Alerts:            inf.Alerts,
		ReplayTimeout:     cfg.Scheduler.ReplayTimeout,
		Metrics:           m,
		Logger:            logging.Default("goldentest"),
	})

	// 启动调度器
	sched, err := scheduler.NewScheduler(svc, scheduler.FromAppConfig(cfg.Scheduler), m, logging.Default("scheduler"))
	if err != nil {
		log.Fatalf("Invalid scheduler config: %v", err)
	}
	go sched.Start(ctx)

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      newRouter(svc, inf.Alerts, m, registry, logging.Default("http")),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Scheduler.ReplayTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		sched.Stop()
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("API Server listening on :%s", cfg.APIPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	fmt.Println("Server stopped")
}
