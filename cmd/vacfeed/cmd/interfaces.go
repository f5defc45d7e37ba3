package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/vacfeed/pkg/instrument"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List available instrument interfaces",
	Long: `Scan the USB bus for USB-TMC instruments and print a summary of the detected
transports. The simulator is always listed. Networked mainframes are reached
with --transport tcp --address host and are not discovered.`,
	RunE: runInterfaces,
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	infos, err := instrument.DiscoverInterfaces(ctx)
	if err != nil {
		return fmt.Errorf("discover interfaces: %w", err)
	}

	fmt.Println("Detected instrument interfaces:")
	for _, iface := range infos {
		if iface.Kind == instrument.InterfaceKindSim {
			fmt.Printf("  - %s [%s]\n", iface.Label(), iface.Kind)
			continue
		}
		fmt.Printf("  - %s [%s] (VID:PID %04X:%04X)\n", iface.Label(), iface.Kind, iface.VendorID, iface.ProductID)
	}

	return nil
}
