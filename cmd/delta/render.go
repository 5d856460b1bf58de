package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/signadot/deltalog/system/deltad/patch"
)

var kindColors = map[patch.Kind]*color.Color{
	patch.KindHeader:       color.New(color.FgBlue),
	patch.KindBegin:        color.New(color.FgYellow),
	patch.KindCommit:       color.New(color.FgYellow),
	patch.KindAbort:        color.New(color.FgYellow, color.Bold),
	patch.KindAdd:          color.New(color.FgGreen),
	patch.KindDelete:       color.New(color.FgRed),
	patch.KindAddPrefix:    color.New(color.FgCyan),
	patch.KindDeletePrefix: color.New(color.FgCyan),
}

// renderPatch writes one line per event in the text patch format.
func renderPatch(w io.Writer, p *patch.Patch, colored bool) error {
	for _, ev := range p.Events() {
		line := ev.String() + " ."
		if c := kindColors[ev.Kind]; colored && c != nil {
			// -color overrides the non-terminal detection of fatih/color
			c.EnableColor()
			line = c.Sprint(line)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
