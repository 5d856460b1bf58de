package main

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/scott-cotton/cli"
)

const defaultServer = "http://localhost:1066"

type MainConfig struct {
	Server  string `cli:"name=server desc='server url (default http://localhost:1066)'"`
	Color   bool   `cli:"name=color desc='color output'"`
	NoColor bool   `cli:"name=nocolor desc='never color output'"`

	Main *cli.Command
}

// colorize reports whether output to w should be colored: -color forces
// it, -nocolor disables it, otherwise terminals get color.
func (cfg *MainConfig) colorize(w io.Writer) bool {
	switch {
	case cfg.NoColor:
		return false
	case cfg.Color:
		return true
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type ServeConfig struct {
	*MainConfig
	Serve *cli.Command

	ConfigFile string `cli:"name=config desc='configuration file (yaml)'"`
	Addr       string `cli:"name=addr desc='listen address, overrides the config file'"`
	Data       string `cli:"name=data desc='data directory, overrides the config file'"`
	Index      string `cli:"name=index desc='index backend: mem, file or sqlite'"`
}

type ListConfig struct {
	*MainConfig
	List *cli.Command
	URIs bool `cli:"name=l desc='long listing with ids and uris'"`
}

type MkConfig struct {
	*MainConfig
	Mk *cli.Command
}

type RmConfig struct {
	*MainConfig
	Rm *cli.Command
}

type DescribeConfig struct {
	*MainConfig
	Describe *cli.Command
}

type VersionConfig struct {
	*MainConfig
	Version *cli.Command
}

type FetchConfig struct {
	*MainConfig
	Fetch *cli.Command
	YAML  bool `cli:"name=yaml desc='print patches as yaml'"`
}

type AppendConfig struct {
	*MainConfig
	Append *cli.Command
}

type SyncConfig struct {
	*MainConfig
	Sync *cli.Command

	State    string `cli:"name=state desc='file holding the local version'"`
	Filter   string `cli:"name=filter desc='only replay events matching this expression'"`
	Prefetch int    `cli:"name=prefetch desc='concurrent fetches' default=4"`
	Quiet    bool   `cli:"name=q desc='do not print the dataset'"`
}
