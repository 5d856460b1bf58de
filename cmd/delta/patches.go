package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/scott-cotton/cli"

	"github.com/signadot/deltalog/system/deltad/api"
	"github.com/signadot/deltalog/system/deltad/link"
	"github.com/signadot/deltalog/system/deltad/patch"
)

func fetch(cfg *FetchConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Fetch.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return fmt.Errorf("%w: expected <dataset> <version|patch-id>...", cli.ErrUsage)
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
	colored := cfg.colorize(cc.Out)
	for _, ref := range args[1:] {
		p, err := fetchRef(ctx, lnk, d.Id, ref)
		if err != nil {
			return err
		}
		if p == nil {
			return api.Errorf(api.ErrCodeNotFound, "%s: no patch %q", d.Name, ref)
		}
		if cfg.YAML {
			out, err := patch.MarshalYAML(p)
			if err != nil {
				return err
			}
			if len(args) > 2 {
				fmt.Fprintln(cc.Out, "---")
			}
			if _, err := cc.Out.Write(out); err != nil {
				return err
			}
			continue
		}
		if err := renderPatch(cc.Out, p, colored); err != nil {
			return err
		}
	}
	return nil
}

// fetchRef fetches by version when ref parses as one, by patch id otherwise.
func fetchRef(ctx context.Context, lnk link.Link, ds api.Id, ref string) (*patch.Patch, error) {
	if v, err := api.ParseVersion(ref); err == nil {
		return lnk.FetchVersion(ctx, ds, v)
	}
	id, err := api.ParseId(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is neither a version nor a patch id", cli.ErrUsage, ref)
	}
	return lnk.FetchId(ctx, ds, id)
}

func appendPatch(cfg *AppendConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Append.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return fmt.Errorf("%w: expected <dataset> <patch.yaml>", cli.ErrUsage)
	}
	var d []byte
	if args[1] == "-" {
		d, err = io.ReadAll(os.Stdin)
	} else {
		d, err = os.ReadFile(args[1])
	}
	if err != nil {
		return err
	}
	p, err := patch.UnmarshalYAML(d)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	lnk, err := cfg.dial(ctx, true)
	if err != nil {
		return err
	}
	defer lnk.Close()
	desc, err := resolveDataset(ctx, lnk, args[0])
	if err != nil {
		return err
	}
	p, err = withHeaders(ctx, lnk, desc.Id, p)
	if err != nil {
		return err
	}
	v, err := lnk.SendPatch(ctx, desc.Id, p)
	if err != nil {
		return err
	}
	fmt.Fprintln(cc.Out, v)
	return nil
}

// withHeaders fills in a missing id header with a fresh id and a missing
// prev header with the id of the dataset's head patch.
func withHeaders(ctx context.Context, lnk link.Link, ds api.Id, p *patch.Patch) (*patch.Patch, error) {
	_, hasId := p.Header(patch.HeaderId)
	_, hasPrev := p.Header(patch.HeaderPrev)
	if hasId && hasPrev {
		return p, nil
	}
	id := p.ID()
	if !hasId {
		id = api.NewId()
	}
	prev := p.Previous()
	if !hasPrev {
		cur, err := lnk.GetCurrentVersion(ctx, ds)
		if err != nil {
			return nil, err
		}
		if cur > api.Init {
			head, err := lnk.FetchVersion(ctx, ds, cur)
			if err != nil {
				return nil, err
			}
			if head == nil {
				return nil, api.Errorf(api.ErrCodeNotFound, "head patch at version %s", cur)
			}
			prev = head.ID()
		}
	}
	// headers present in p replace the ones set here
	b := patch.NewBuilder(id, prev)
	for _, ev := range p.Events() {
		if err := b.WriteEvent(&ev); err != nil {
			return nil, err
		}
	}
	return b.Patch(), nil
}
