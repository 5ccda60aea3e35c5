// Package app wires configuration, the engine, and process lifecycle
// together. Signal handling and exit codes live here so every deployment
// behaves the same way.
package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kowito/chopin-sub000/config"
	"github.com/kowito/chopin-sub000/core"
)

// App is one process: a configuration and an engine.
type App struct {
	cfg    *config.Config
	engine *core.Engine
}

// New creates an application instance
func New(cfg *config.Config) *App {
	return &App{
		cfg:    cfg,
		engine: core.NewEngine(cfg),
	}
}

// Engine returns the underlying engine for route registration
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Run serves until SIGINT or SIGTERM, then drains within the grace period.
// The process exits 0 on a graceful stop and 1 when startup or shutdown
// fails, so supervisors can tell a clean restart from a crash loop.
func (a *App) Run() {
	go a.awaitSignal()

	log.Printf("starting on %s [%s/%s]", a.cfg.Addr, a.cfg.Mode, a.cfg.Env)

	if err := a.engine.Run(); err != nil {
		log.Printf("startup failed: %v", err)
		os.Exit(1)
	}
	log.Printf("stopped")
}

func (a *App) awaitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("signal %v received, draining (grace %v)", sig, a.cfg.GracePeriod)

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.GracePeriod+time.Second)
	defer cancel()
	if err := a.engine.Shutdown(ctx); err != nil {
		log.Printf("shutdown incomplete: %v", err)
		os.Exit(1)
	}
}
