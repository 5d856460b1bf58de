package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/goccy/go-yaml"
	"github.com/scott-cotton/cli"
)

func list(cfg *ListConfig, cc *cli.Context, args []string) error {
	args, err := cfg.List.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 0 {
		return fmt.Errorf("%w: ls takes no arguments", cli.ErrUsage)
	}
	ctx, cancel := signalContext()
	defer cancel()
	lnk, err := cfg.dial(ctx, false)
	if err != nil {
		return err
	}
	defer lnk.Close()
	descs, err := lnk.Descriptions(ctx)
	if err != nil {
		return err
	}
	if !cfg.URIs {
		for _, d := range descs {
			fmt.Fprintln(cc.Out, d.Name)
		}
		return nil
	}
	tw := tabwriter.NewWriter(cc.Out, 0, 4, 2, ' ', 0)
	for _, d := range descs {
		v, err := lnk.GetCurrentVersion(ctx, d.Id)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, d.Id.Plain(), v, d.URI)
	}
	return tw.Flush()
}

func mk(cfg *MkConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Mk.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: expected <name> [uri]", cli.ErrUsage)
	}
	uri := ""
	if len(args) == 2 {
		uri = args[1]
	}
	ctx, cancel := signalContext()
	defer cancel()
	lnk, err := cfg.dial(ctx, true)
	if err != nil {
		return err
	}
	defer lnk.Close()
	id, err := lnk.NewDataSource(ctx, args[0], uri)
	if err != nil {
		return err
	}
	fmt.Fprintln(cc.Out, id)
	return nil
}

func rm(cfg *RmConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Rm.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("%w: expected <dataset>", cli.ErrUsage)
	}
	ctx, cancel := signalContext()
	defer cancel()
	lnk, err := cfg.dial(ctx, true)
	if err != nil {
		return err
	}
	defer lnk.Close()
	d, err := resolveDataset(ctx, lnk, args[0])
	if err != nil {
		return err
	}
	return lnk.RemoveDataSource(ctx, d.Id)
}

func describe(cfg *DescribeConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Describe.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("%w: expected <dataset|uri>", cli.ErrUsage)
	}
	ctx, cancel := signalContext()
	defer cancel()
	lnk, err := cfg.dial(ctx, false)
	if err != nil {
		return err
	}
	defer lnk.Close()
	d, err := lnk.GetDescriptionByURI(ctx, args[0])
	if err != nil {
		return err
	}
	if d == nil {
		if d, err = resolveDataset(ctx, lnk, args[0]); err != nil {
			return err
		}
	}
	out, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	_, err = cc.Out.Write(out)
	return err
}

func version(cfg *VersionConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Version.Parse(cc, args)
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
	v, err := lnk.GetCurrentVersion(ctx, d.Id)
	if err != nil {
		return err
	}
	fmt.Fprintln(cc.Out, v)
	return nil
}
