package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/vacfeed/pkg/chanmap"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Print the parsed channel map",
	Long: `Parse the channel map and print one line per 44-pin connector position with
its two 37-pin wires and the pinout reference voltage. The instrument is not
contacted. Every malformed row is reported.`,
	Args: cobra.NoArgs,
	RunE: runChannels,
}

func init() {
	rootCmd.AddCommand(channelsCmd)
}

func runChannels(cmd *cobra.Command, args []string) error {
	cfg, err := station()
	if err != nil {
		return err
	}
	m, err := chanmap.LoadFile(cfg.ChannelMap)
	if err != nil {
		return err
	}

	fmt.Printf("Channel map %s: %d rows\n\n", cfg.ChannelMap, m.Len())
	fmt.Printf("%-6s %-7s %-7s %s\n", "pin44", "pin37A", "pin37B", "expected")
	for _, r := range m.Rows() {
		expected := "-"
		if v, ok := r.ExpectedVoltage(); ok {
			expected = fmt.Sprintf("%.2f V", v)
		}
		fmt.Printf("CH%02dH  CH%02dH   CH%02dH   %s\n", r.Pin44, r.Pin37A, r.Pin37B, expected)
	}

	if missing := m.MissingExpected(); len(missing) > 0 && len(missing) < m.Len() {
		fmt.Printf("\n%d rows lack an expected voltage; the pinout test will refuse this map\n", len(missing))
	}
	return nil
}
