package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/glitch.report/internal/transport"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List attached scopes and serial ports",
	RunE:  runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	scopes, err := transport.ListInstruments()
	if err != nil {
		return fmt.Errorf("list scopes: %w", err)
	}
	if len(scopes) == 0 {
		fmt.Fprintln(out, "No scopes found.")
	} else {
		fmt.Fprintln(out, "Scopes:")
		for _, d := range scopes {
			fmt.Fprintf(out, "  - %s (VID:PID %04X:%04X) serial %s\n", d.Description, d.VID, d.PID, d.SerialNumber)
		}
	}

	ports, err := transport.ListSerialPorts()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Fprintln(out, "No serial ports found.")
		return nil
	}
	fmt.Fprintln(out, "Serial ports:")
	for _, p := range ports {
		fmt.Fprintf(out, "  - %s\n", p)
	}
	return nil
}
