package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	zLog "github.com/rs/zerolog/log"

	"netagent/internal/agents/conductor/handler"
	"netagent/internal/api"
	"netagent/internal/config"
	"netagent/internal/llm"
	"netagent/internal/router"
	"netagent/internal/tools"
	"netagent/pkg/logger"
)

// Expects OPENAI_API_KEY in the environment; everything else comes from the
// config file.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Panicf("failed to load config: %v", err)
	}
	if err := logger.NewGlobal(cfg.Log.Level, cfg.Log.Pretty); err != nil {
		log.Panicf("failed to initialize logger: %v", err)
	}
	zLog.Info().Str("config", *configPath).Msg("starting server")

	model, err := llm.NewOpenAI(cfg.LLM.Model)
	if err != nil {
		zLog.Panic().Err(err).Msg("failed to build model client")
	}

	registry := tools.NewMCPRegistry()
	startCtx, cancelStart := context.WithTimeout(context.Background(), time.Minute)
	if err := registry.Start(startCtx, cfg.MCP.Servers); err != nil {
		cancelStart()
		zLog.Panic().Err(err).Msg("failed to start mcp servers")
	}
	cancelStart()
	defer registry.Close()

	ledger := llm.NewLedger(cfg.Tokens)
	rt := router.New(cfg, registry)
	h := handler.New(cfg, model, ledger, rt, registry)

	err = config.Watch(*configPath, func(next *config.Config) {
		if err := logger.NewGlobal(next.Log.Level, next.Log.Pretty); err != nil {
			zLog.Warn().Err(err).Msg("reloaded log level invalid, keeping previous")
		}
		rt.Reload(next)
		h.Reload(next)
	})
	if err != nil {
		zLog.Warn().Err(err).Msg("config watching disabled")
	}

	system := actor.NewActorSystem().Root
	app := api.New(cfg, system, h)

	go func() {
		if err := app.Start(); err != nil {
			zLog.Panic().Err(err).Msg("server crash")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	stop()
	zLog.Info().Msg("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Stop(shutdownCtx); err != nil {
		zLog.Panic().Err(err).Msg("server forced to shutdown")
	}

	zLog.Info().Msg("server exiting")
}
