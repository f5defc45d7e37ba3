package cmd

import (
	"fmt"
	"os"

	"github.com/go-kit/log"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/vacfeed/internal/config"
	"github.com/OpenTraceLab/vacfeed/internal/logging"
)

var (
	// Global flags
	verbose     bool
	configPath  string
	address     string
	transport   string
	mapPath     string
	operatorTag string
	reportsDir  string
	logLevel    string
	logFormat   string
	metricsFile string
)

var rootCmd = &cobra.Command{
	Use:   "vacfeed",
	Short: "Vacuum feedthrough acceptance tester",
	Long: `Drive a Keithley 3706A switch/DMM mainframe through the continuity and load,
hi-pot and pinout tests of a vacuum feedthrough, write a transcript per test
and report pass/fail on the instrument front panel.

Examples:
  vacfeed run -c -p -n SN042                         # Continuity then hi-pot
  vacfeed pinout --map flange_b.csv                  # Pinout check only
  vacfeed run -c -t sim --sim-open 7:12              # Simulated bench, one broken wire
  vacfeed channels                                   # Print the parsed channel map`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	pf.StringVar(&configPath, "config", "", "station configuration file (YAML)")
	pf.StringVarP(&address, "address", "a", "", "instrument host[:port] (default "+config.DefaultAddress+")")
	pf.StringVarP(&transport, "transport", "t", "", "instrument transport (tcp, usbtmc, sim)")
	pf.StringVarP(&mapPath, "map", "m", "", "channel map CSV (default "+config.DefaultChannelMap+")")
	pf.StringVarP(&operatorTag, "name", "n", "", "tag embedded in report file names, e.g. the feedthrough serial")
	pf.StringVar(&reportsDir, "reports", "", "report directory (default "+config.DefaultReportsDir+")")
	pf.StringVar(&logLevel, "log.level", "warn", "log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log.format", "logfmt", "log format (logfmt, json)")
	pf.StringVar(&metricsFile, "metrics.file", "", "write run metrics to this file in text exposition format")
}

// station loads the configuration file, if any, and applies the flag
// overrides.
func station() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}

	if address != "" {
		cfg.Instrument.Address = address
	}
	if transport != "" {
		cfg.Instrument.Transport = transport
	}
	if mapPath != "" {
		cfg.ChannelMap = mapPath
	}
	if reportsDir != "" {
		cfg.ReportsDir = reportsDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger() (log.Logger, error) {
	lvl := logLevel
	if verbose {
		lvl = "debug"
	}
	return logging.New(os.Stderr, logFormat, lvl)
}
