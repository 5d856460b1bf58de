package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/scott-cotton/cli"

	"github.com/signadot/deltalog/system/deltad/api"
	"github.com/signadot/deltalog/system/deltad/link"
)

func deltaMain(cfg *MainConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Main.Parse(cc, args)
	if err != nil {
		return err
	}
	if cfg.Color && cfg.NoColor {
		return fmt.Errorf("%w: -color and -nocolor are exclusive", cli.ErrUsage)
	}
	if len(args) == 0 {
		return cli.ErrNoCommandProvided
	}
	sub := cfg.Main.FindSub(cc, args[0])
	if sub == nil {
		return fmt.Errorf("%w: %q not found", cli.ErrNoSuchCommand, args[0])
	}
	err = sub.Run(cc, args[1:])
	if errors.Is(err, cli.ErrUsage) {
		sub.Usage(cc, err)
		os.Exit(sub.Exit(cc, err))
	}
	return err
}

// signalContext is cancelled on interrupt.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func logger() *slog.Logger {
	level := slog.LevelWarn
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// dial returns a link to the configured server. With register set, the
// link is registered under a fresh client id.
func (cfg *MainConfig) dial(ctx context.Context, register bool) (*link.HTTP, error) {
	lnk, err := link.NewHTTP(cfg.Server, nil, logger())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cli.ErrUsage, err)
	}
	if register {
		if err := lnk.Register(ctx, api.NewId()); err != nil {
			return nil, fmt.Errorf("register with %s: %w", cfg.Server, err)
		}
	}
	return lnk, nil
}

// resolveDataset finds a dataset by id, name or uri.
func resolveDataset(ctx context.Context, lnk link.Link, ref string) (*api.DataSourceDescription, error) {
	descs, err := lnk.Descriptions(ctx)
	if err != nil {
		return nil, err
	}
	id, idErr := api.ParseId(ref)
	for i := range descs {
		d := &descs[i]
		if idErr == nil && d.Id == id {
			return d, nil
		}
	}
	for i := range descs {
		d := &descs[i]
		if d.Name == ref || (d.URI != "" && d.URI == ref) || d.Id.Plain() == ref {
			return d, nil
		}
	}
	return nil, api.Errorf(api.ErrCodeNotFound, "no dataset %q", ref)
}
