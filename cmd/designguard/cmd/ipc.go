package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/designguard/pkg/compliance"
	"github.com/OpenTraceLab/designguard/pkg/kicad"
)

var (
	ipcCurrent  float64
	ipcWidth    float64
	ipcOz       float64
	ipcRise     float64
	ipcInternal bool
)

var ipcCmd = &cobra.Command{
	Use:   "ipc [board_file]",
	Short: "IPC-2221 trace current calculator",
	Long: `Calculate trace widths and current capacity with the IPC-2221 formula.

With --current: the width needed to carry that current
With --width: the current a trace of that width can carry
With both: the temperature rise of that trace at that current
With a board file: the per-net capacity summary of the board

Examples:
  designguard ipc --current 2 --oz 1
  designguard ipc --width 0.25 --internal --rise 20
  designguard ipc main.kicad_pcb`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIPC,
}

func init() {
	rootCmd.AddCommand(ipcCmd)
	ipcCmd.Flags().Float64Var(&ipcCurrent, "current", 0, "current in A")
	ipcCmd.Flags().Float64Var(&ipcWidth, "width", 0, "trace width in mm")
	ipcCmd.Flags().Float64Var(&ipcOz, "oz", 1, "copper weight in oz/ft²")
	ipcCmd.Flags().Float64Var(&ipcRise, "rise", compliance.DefaultTempRise, "allowed temperature rise in °C")
	ipcCmd.Flags().BoolVar(&ipcInternal, "internal", false, "trace on an inner layer")
}

func runIPC(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 1 {
		return runIPCBoard(cmd, args[0])
	}
	if ipcOz <= 0 || ipcRise <= 0 {
		return fmt.Errorf("--oz and --rise must be positive")
	}
	thickness := compliance.CopperThickness(ipcOz)
	external := !ipcInternal
	layer := "external"
	if ipcInternal {
		layer = "internal"
	}
	fmt.Fprintf(out, "Copper: %.2f oz (%.3f mm), %s layer, %.1f °C rise\n", ipcOz, thickness, layer, ipcRise)

	switch {
	case ipcCurrent > 0 && ipcWidth > 0:
		rise := compliance.TemperatureRise(ipcCurrent, ipcWidth, thickness, external)
		fmt.Fprintf(out, "Temperature rise: %.1f °C at %.2f A on %.3f mm\n", rise, ipcCurrent, ipcWidth)
		if rise > ipcRise {
			fmt.Fprintf(out, "Exceeds the allowed rise; use at least %.3f mm\n",
				compliance.RequiredWidth(ipcCurrent, thickness, ipcRise, external))
		}
	case ipcCurrent > 0:
		fmt.Fprintf(out, "Required width: %.3f mm for %.2f A\n",
			compliance.RequiredWidth(ipcCurrent, thickness, ipcRise, external), ipcCurrent)
	case ipcWidth > 0:
		fmt.Fprintf(out, "Max current: %.2f A for %.3f mm\n",
			compliance.MaxCurrent(ipcWidth, thickness, ipcRise, external), ipcWidth)
	default:
		return fmt.Errorf("give --current, --width or a board file")
	}
	return nil
}

func runIPCBoard(cmd *cobra.Command, path string) error {
	design, err := kicad.LoadFile(path, kicad.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	if design.Board == nil {
		return fmt.Errorf("%s is not a board", path)
	}
	cfg, err := loadConfig(filepath.Dir(path))
	if err != nil {
		return err
	}

	calc := compliance.NewCalculator(design.Board)
	calc.TempRise = cfg.IPC.TempRise
	if cmd.Flags().Changed("rise") {
		calc.TempRise = ipcRise
	}
	if cfg.IPC.OuterOz > 0 {
		calc.OuterOz = cfg.IPC.OuterOz
	}
	if cfg.IPC.InnerOz > 0 {
		calc.InnerOz = cfg.IPC.InnerOz
	}
	calc.Currents = cfg.IPC.Currents

	rep, err := calc.Report(design.Board)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Board: %s (%.1f °C rise, outer %.2f oz, inner %.2f oz)\n", path, rep.TempRiseC, rep.OuterOz, rep.InnerOz)
	fmt.Fprintf(out, "  %-20s %8s %8s %10s %10s\n", "Net", "Tracks", "Min mm", "Capacity A", "Expected A")
	for _, n := range rep.Nets {
		fmt.Fprintf(out, "  %-20s %8d %8.3f %10.2f %10.2f\n", n.Net, n.TrackCount, n.MinWidthMM, n.MinCapacityA, n.ExpectedCurrentA)
	}
	for _, f := range rep.Findings {
		fmt.Fprintf(out, "  %s: %s\n", f.Severity, f.Message)
	}
	return nil
}
