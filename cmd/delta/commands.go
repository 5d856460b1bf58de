package main

import (
	"github.com/scott-cotton/cli"
)

func MainCommand() *cli.Command {
	cfg := &MainConfig{Server: defaultServer}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Main, "delta").
		WithSynopsis("delta [opts] command [opts]").
		WithDescription("delta manages and replicates patch logs.").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return deltaMain(cfg, cc, args)
		}).
		WithSubs(
			ServeCommand(cfg),
			ListCommand(cfg),
			MkCommand(cfg),
			RmCommand(cfg),
			DescribeCommand(cfg),
			VersionCommand(cfg),
			FetchCommand(cfg),
			AppendCommand(cfg),
			SyncCommand(cfg))
}

func ServeCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &ServeConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Serve, "serve").
		WithSynopsis("serve [-config file] [-addr addr] [-data dir] [-index backend]").
		WithDescription("run the patch log server").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return serve(cfg, cc, args)
		})
}

func ListCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &ListConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.List, "ls").
		WithAliases("list").
		WithSynopsis("ls [-l]").
		WithDescription("list datasets").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return list(cfg, cc, args)
		})
}

func MkCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &MkConfig{MainConfig: mainCfg}
	return cli.NewCommandAt(&cfg.Mk, "mk").
		WithSynopsis("mk <name> [uri]").
		WithDescription("create a dataset").
		WithRun(func(cc *cli.Context, args []string) error {
			return mk(cfg, cc, args)
		})
}

func RmCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &RmConfig{MainConfig: mainCfg}
	return cli.NewCommandAt(&cfg.Rm, "rm").
		WithSynopsis("rm <dataset>").
		WithDescription("remove a dataset; the server keeps its files aside").
		WithRun(func(cc *cli.Context, args []string) error {
			return rm(cfg, cc, args)
		})
}

func DescribeCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &DescribeConfig{MainConfig: mainCfg}
	return cli.NewCommandAt(&cfg.Describe, "describe").
		WithAliases("desc").
		WithSynopsis("describe <dataset|uri>").
		WithDescription("print the description of a dataset").
		WithRun(func(cc *cli.Context, args []string) error {
			return describe(cfg, cc, args)
		})
}

func VersionCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &VersionConfig{MainConfig: mainCfg}
	return cli.NewCommandAt(&cfg.Version, "version").
		WithSynopsis("version <dataset>").
		WithDescription("print the current version of a dataset").
		WithRun(func(cc *cli.Context, args []string) error {
			return version(cfg, cc, args)
		})
}

func FetchCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &FetchConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Fetch, "fetch").
		WithSynopsis("fetch [-yaml] <dataset> <version|patch-id>...").
		WithDescription("print patches").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return fetch(cfg, cc, args)
		})
}

func AppendCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &AppendConfig{MainConfig: mainCfg}
	return cli.NewCommandAt(&cfg.Append, "append").
		WithSynopsis("append <dataset> <patch.yaml>").
		WithDescription(appendDescription).
		WithRun(func(cc *cli.Context, args []string) error {
			return appendPatch(cfg, cc, args)
		})
}

const appendDescription = `append a patch to a dataset.

The patch file is a yaml list of events:

  - op: TX
  - op: PA
    prefix: ex
    uri: http://example.org/
  - op: A
    s: <http://example.org/alice>
    p: <http://xmlns.com/foaf/0.1/name>
    o: '"Alice"'
  - op: TC

Unless the file sets them with H events, the id header is generated and
the prev header is set to the dataset's current head.`

func SyncCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &SyncConfig{MainConfig: mainCfg, Prefetch: 4}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Sync, "sync").
		WithSynopsis("sync [-state file] [-filter expr] <dataset>").
		WithDescription("replay a dataset into memory and print it").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return syncDataset(cfg, cc, args)
		})
}
