package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/designguard/pkg/kicad"
	"github.com/OpenTraceLab/designguard/pkg/kicad/pcb"
	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
	"github.com/OpenTraceLab/designguard/pkg/netlist"
)

var infoNetlist bool

var infoCmd = &cobra.Command{
	Use:   "info <design_file> [reference]",
	Short: "Show design file information",
	Long: `Display information about a KiCad schematic or board.

Without reference: shows a summary with components and nets
With reference: shows details and connected nets for that component`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().BoolVar(&infoNetlist, "netlist", false, "print the resolved netlist of a schematic")
}

func runInfo(cmd *cobra.Command, args []string) error {
	design, err := kicad.LoadFile(args[0], kicad.WithLogger(slog.Default()))
	if err != nil {
		return fmt.Errorf("error loading design: %w", err)
	}
	out := cmd.OutOrStdout()

	if design.Board != nil {
		if len(args) == 2 {
			return showFootprint(out, design.Board, args[1])
		}
		showBoardSummary(out, design)
		return nil
	}

	nl := netlist.Build(design.Schematic)
	if infoNetlist {
		fmt.Fprintln(out, nl.Export())
		return nil
	}
	if len(args) == 2 {
		return showComponent(out, design.Schematic, nl, args[1])
	}
	showSchematicSummary(out, design, nl)
	return nil
}

func showSchematicSummary(out io.Writer, design *kicad.Design, nl *netlist.Netlist) {
	sch := design.Schematic
	fmt.Fprintf(out, "Schematic: %s\n", design.Name)
	fmt.Fprintf(out, "Format: %s\n", design.Format)
	if sch.Generator != "" {
		fmt.Fprintf(out, "Generator: %s", sch.Generator)
		if sch.GeneratorVer != "" {
			fmt.Fprintf(out, " v%s", sch.GeneratorVer)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Statistics:")
	fmt.Fprintf(out, "  Components: %d\n", len(sch.Components))
	fmt.Fprintf(out, "  Power symbols: %d\n", len(sch.PowerSymbols))
	fmt.Fprintf(out, "  Wires: %d\n", len(sch.Wires))
	fmt.Fprintf(out, "  Labels: %d\n", len(sch.Labels))
	fmt.Fprintf(out, "  Junctions: %d\n", len(sch.Junctions))
	fmt.Fprintf(out, "  No-connects: %d\n", len(sch.NoConnects))
	fmt.Fprintf(out, "  Nets: %d\n", len(nl.Nets))
	fmt.Fprintln(out)

	if len(sch.Components) > 0 {
		fmt.Fprintln(out, "Components:")
		byPrefix := make(map[string][]string)
		for _, c := range sch.Components {
			p := refPrefix(c.Reference)
			byPrefix[p] = append(byPrefix[p], c.Reference)
		}
		prefixes := make([]string, 0, len(byPrefix))
		for p := range byPrefix {
			prefixes = append(prefixes, p)
		}
		sort.Strings(prefixes)
		for _, p := range prefixes {
			refs := byPrefix[p]
			sort.Strings(refs)
			fmt.Fprintf(out, "  %s: %s\n", p, strings.Join(refs, ", "))
		}
		fmt.Fprintln(out)
	}

	if len(nl.Nets) > 0 {
		fmt.Fprintln(out, "Nets:")
		for _, n := range nl.Nets {
			fmt.Fprintf(out, "  %-20s %d pin(s)\n", n.Name, len(n.Pins))
		}
	}
}

func showComponent(out io.Writer, sch *schematic.Schematic, nl *netlist.Netlist, ref string) error {
	var comp *schematic.Component
	for i := range sch.Components {
		if sch.Components[i].Reference == ref {
			comp = &sch.Components[i]
			break
		}
	}
	if comp == nil {
		return fmt.Errorf("component '%s' not found", ref)
	}

	fmt.Fprintf(out, "Component: %s\n", ref)
	fmt.Fprintf(out, "Value: %s\n", comp.Value)
	fmt.Fprintf(out, "Library: %s\n", comp.LibID)
	if comp.Footprint != "" {
		fmt.Fprintf(out, "Footprint: %s\n", comp.Footprint)
	}
	fmt.Fprintf(out, "Position: (%.2f, %.2f)\n", comp.Position.X, comp.Position.Y)
	if comp.Rotation != 0 {
		fmt.Fprintf(out, "Rotation: %.1f°\n", comp.Rotation)
	}
	fmt.Fprintln(out)

	if len(comp.Pins) > 0 {
		fmt.Fprintln(out, "Pins:")
		for _, p := range comp.Pins {
			net, ok := nl.NetOf(ref, p.Number)
			if !ok {
				net = "(unconnected)"
			}
			fmt.Fprintf(out, "  %s (%s): %s %s\n", p.Number, p.Name, p.Type, net)
		}
	} else if nets := nl.NetsOf(ref); len(nets) > 0 {
		fmt.Fprintf(out, "Nets: %s\n", strings.Join(nets, ", "))
	}
	return nil
}

func showBoardSummary(out io.Writer, design *kicad.Design) {
	board := design.Board
	fmt.Fprintf(out, "Board: %s\n", design.Name)
	fmt.Fprintf(out, "Format: %s\n", design.Format)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Statistics:")
	fmt.Fprintf(out, "  Copper layers: %s\n", strings.Join(board.CopperLayers(), ", "))
	fmt.Fprintf(out, "  Nets: %d\n", len(board.Nets))
	fmt.Fprintf(out, "  Footprints: %d\n", len(board.Footprints))
	fmt.Fprintf(out, "  Tracks: %d\n", len(board.Tracks))
	fmt.Fprintf(out, "  Vias: %d\n", len(board.Vias))
	fmt.Fprintf(out, "  Zones: %d\n", len(board.Zones))
	if !board.Outline.IsEmpty() {
		fmt.Fprintf(out, "  Outline: %.2f x %.2f mm\n", board.Outline.Width(), board.Outline.Height())
	}
	fmt.Fprintln(out)

	names := board.GetAllNetNames()
	if len(names) > 0 {
		fmt.Fprintln(out, "Nets:")
		fmt.Fprintf(out, "  %-20s %6s %6s %6s\n", "Name", "Pads", "Tracks", "Vias")
		for _, n := range names {
			fmt.Fprintf(out, "  %-20s %6d %6d %6d\n", n,
				len(board.GetNetPads(n)), len(board.GetNetTracks(n)), len(board.GetNetVias(n)))
		}
	}
}

func showFootprint(out io.Writer, board *pcb.Board, ref string) error {
	fp, ok := board.GetFootprint(ref)
	if !ok {
		return fmt.Errorf("footprint '%s' not found", ref)
	}
	fmt.Fprintf(out, "Footprint: %s\n", ref)
	fmt.Fprintf(out, "Value: %s\n", fp.Value)
	fmt.Fprintf(out, "Library: %s\n", fp.Library)
	fmt.Fprintf(out, "Layer: %s\n", fp.Layer)
	fmt.Fprintf(out, "Position: (%.2f, %.2f)\n", fp.Position.X, fp.Position.Y)
	return nil
}

// refPrefix returns the letters before the first digit of a reference
func refPrefix(ref string) string {
	for i, c := range ref {
		if c >= '0' && c <= '9' {
			return ref[:i]
		}
	}
	return ref
}
