package main

import (
	"fmt"
	"os"

	"github.com/scott-cotton/cli"

	"github.com/signadot/deltalog/system/deltad/client"
	"github.com/signadot/deltalog/system/deltad/dataset"
)

func syncDataset(cfg *SyncConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Sync.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("%w: expected <dataset>", cli.ErrUsage)
	}
	ctx, cancel := signalContext()
	defer cancel()
	lnk, err := cfg.dial(ctx, false)
	if err != nil {
		return err
	}
	defer lnk.Close()
	d, err := resolveDataset(ctx, lnk, args[0])
	if err != nil {
		return err
	}

	var versions client.VersionCell = &client.MemCell{}
	if cfg.State != "" {
		versions = &client.FileCell{Path: cfg.State}
	}
	target := dataset.New()
	c, err := client.New(ctx, client.Config{
		Label:    "delta",
		Dataset:  d.Id,
		Link:     lnk,
		Versions: versions,
		Target:   target,
		Filter:   cfg.Filter,
		Prefetch: cfg.Prefetch,
		Log:      logger(),
	})
	if err != nil {
		return err
	}
	if err := c.Sync(ctx); err != nil {
		return err
	}
	if c.RemoteVersion().IsUnset() {
		return fmt.Errorf("%s unreachable, nothing synced", lnk)
	}
	if !cfg.Quiet {
		fmt.Fprint(cc.Out, target.Dump())
	}
	fmt.Fprintf(os.Stderr, "%s: local version %s\n", d.Name, c.LocalVersion())
	return nil
}
