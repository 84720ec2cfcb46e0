// Package main - точка входа для фоновых процессов сервиса прогресса Ivrit Hub.
//
// Worker отвечает за периодические задачи:
//   - обнуление серий пользователей, пропустивших день
//   - истечение целей, срок которых прошёл
//
// Каждое изменение идёт через тот же поток прогресса, что и API, поэтому
// события, кэш и метрики обновляются одинаково.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ivrit-hub/progress-hub/config"
	"github.com/ivrit-hub/progress-hub/internal/app"
	"github.com/ivrit-hub/progress-hub/internal/infrastructure/scheduler"
	"github.com/ivrit-hub/progress-hub/internal/infrastructure/scheduler/jobs"
	"github.com/ivrit-hub/progress-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	zl, err := logger.New(logger.Config{
		Level:   cfg.Log.Level,
		Format:  logger.Format(cfg.Log.Format),
		Env:     string(cfg.App.Env),
		Service: cfg.App.Name + "-worker",
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Logger

	log.Info("starting progress worker",
		"env", cfg.App.Env,
		"timezone", cfg.App.Location.String(),
		"storage", cfg.Storage.Driver,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩЕ И ПОТОК ПРОГРЕССА
	// ─────────────────────────────────────────────────────────────────────────
	c, err := app.Build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer func() {
		log.Info("releasing resources...")
		if err := c.Close(); err != nil {
			log.Error("failed to release resources", "error", err)
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{
		Logger:   log,
		Timezone: cfg.App.Location,
	})

	if err := sched.Register(
		jobs.NewExpireStreaksJob(c.ExpireStreaks(), log),
		scheduler.Schedule{Every: cfg.Worker.ExpireStreaksInterval},
	); err != nil {
		return fmt.Errorf("failed to register expire_streaks: %w", err)
	}
	if err := sched.Register(
		jobs.NewExpireGoalsJob(c.ExpireGoals(), log),
		scheduler.Schedule{Every: cfg.Worker.ExpireGoalsInterval},
	); err != nil {
		return fmt.Errorf("failed to register expire_goals: %w", err)
	}

	// Первый проход сразу: после простоя серии не должны ждать интервала.
	for _, name := range []string{"expire_streaks", "expire_goals"} {
		res, err := sched.RunNow(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to run %s: %w", name, err)
		}
		if res.Error != nil {
			log.Warn("initial run failed", "job", name, "error", res.Error)
		}
	}

	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. МЕТРИКИ
	// ─────────────────────────────────────────────────────────────────────────
	var metricsServer *http.Server
	if c.MetricsHandler != nil && cfg.Worker.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", c.MetricsHandler)
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", "error", err)
			}
		}()
		log.Info("metrics endpoint listening", "address", metricsServer.Addr)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("progress worker is running",
		"expire_streaks_every", cfg.Worker.ExpireStreaksInterval.String(),
		"expire_goals_every", cfg.Worker.ExpireGoalsInterval.String(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	// 1. Останавливаем планировщик: текущие задачи получают отмену контекста
	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler", "error", err)
	}

	// 2. Останавливаем сервер метрик
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to stop metrics server", "error", err)
		}
	}

	// 3. Шина событий, Kafka и хранилище закроются через defer

	log.Info("shutdown completed")
	return nil
}
