// Package cmd holds the daemon's cobra subcommands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smazurov/webcamd/internal/config"
	"github.com/smazurov/webcamd/internal/logging"
	"github.com/smazurov/webcamd/pkg/linuxav/v4l2"
)

// CreateProbeCmd creates the probe command: an operator-facing dump of
// the gadget output nodes and their advertised formats.
func CreateProbeCmd() *cobra.Command {
	var ignoredNodesFile string

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "List UVC gadget nodes and their formats",
		Long: `Scans /dev/video* for video-output nodes (UVC gadget functions), honoring ` +
			`the vendor ignore list, and prints each node's formats, frame sizes, and ` +
			`frame intervals. Capture nodes are listed for reference.`,
		Run: func(_ *cobra.Command, _ []string) {
			logging.Initialize(logging.Config{Level: "warn", Format: "text"})

			ignored, err := config.LoadIgnoredNodes(ignoredNodesFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "reading ignore list: %v\n", err)
			}

			outputs, err := v4l2.FindOutputNodes(ignored)
			if err != nil {
				fmt.Fprintf(os.Stderr, "scanning for output nodes: %v\n", err)
				os.Exit(1)
			}
			if len(outputs) == 0 {
				fmt.Println("No video-output nodes found. Is the UVC gadget function bound?")
			}

			for _, info := range outputs {
				fmt.Printf("%s  %s (driver %s)\n", info.DevicePath, info.DeviceName, info.Driver)
				printFormats(info.DevicePath)
			}

			captures, err := v4l2.FindCaptureNodes()
			if err != nil {
				fmt.Fprintf(os.Stderr, "scanning for capture nodes: %v\n", err)
				return
			}
			if len(captures) > 0 {
				fmt.Println("\nCapture nodes:")
				for _, info := range captures {
					fmt.Printf("%s  %s (driver %s)\n", info.DevicePath, info.DeviceName, info.Driver)
				}
			}
		},
	}

	cmd.Flags().StringVar(&ignoredNodesFile, "ignored-nodes-file",
		"/vendor/etc/ignored_v4l2_nodes.json", "Vendor ignore list (JSON array of nodes)")
	return cmd
}

func printFormats(path string) {
	dev, err := v4l2.OpenOutput(path)
	if err != nil {
		fmt.Printf("  cannot open: %v\n", err)
		return
	}
	defer dev.Close()

	formats, err := dev.Formats()
	if err != nil {
		fmt.Printf("  cannot enumerate formats: %v\n", err)
		return
	}

	for _, format := range formats {
		fmt.Printf("  %s (%s)\n", format.FormatName, v4l2.FormatFourCC(format.PixelFormat))

		resolutions, err := dev.Resolutions(format.PixelFormat)
		if err != nil {
			fmt.Printf("    cannot enumerate sizes: %v\n", err)
			continue
		}
		for _, res := range resolutions {
			fmt.Printf("    %dx%d @", res.Width, res.Height)
			rates, err := dev.Framerates(format.PixelFormat, res.Width, res.Height)
			if err != nil {
				fmt.Printf(" ?\n")
				continue
			}
			for _, rate := range rates {
				fmt.Printf(" %.4g", rate.FPS())
			}
			fmt.Println(" fps")
		}
	}
}
