package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/gops/agent"
	"github.com/scott-cotton/cli"

	"github.com/signadot/deltalog/system/deltad/server"
)

func serve(cfg *ServeConfig, cc *cli.Context, args []string) error {
	_, err := cfg.Serve.Parse(cc, args)
	if err != nil {
		return err
	}

	// Start gops agent for debugging
	if err := agent.Listen(agent.Options{}); err != nil {
		fmt.Fprintf(cc.Out, "gops agent failed: %v\n", err)
	}
	defer agent.Close()

	srvCfg := server.DefaultConfig()
	if cfg.ConfigFile != "" {
		srvCfg, err = server.LoadConfig(cfg.ConfigFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	if cfg.Addr != "" {
		srvCfg.Addr = cfg.Addr
	}
	if cfg.Data != "" {
		srvCfg.Data = cfg.Data
	}
	if cfg.Index != "" {
		srvCfg.Index = cfg.Index
	}
	if err := srvCfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", cli.ErrUsage, err)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: serveLevel()}))
	reg, err := server.OpenRegistry(srvCfg, log)
	if err != nil {
		return fmt.Errorf("failed to open data: %w", err)
	}
	defer reg.Close()

	srv := server.New(&server.Spec{Config: srvCfg, Registry: reg, Log: log})
	defer srv.Close()

	ctx, cancel := signalContext()
	defer cancel()
	hs := &http.Server{Addr: srvCfg.Addr, Handler: srv}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hs.Shutdown(shutdownCtx)
	}()

	storage := srvCfg.Data
	if storage == "" {
		storage = "memory"
	}
	log.Info("delta server listening", "addr", srvCfg.Addr, "data", storage, "datasets", len(reg.List()))
	if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func serveLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
