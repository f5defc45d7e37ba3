package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/vacfeed/internal/metrics"
	"github.com/OpenTraceLab/vacfeed/pkg/bench"
	"github.com/OpenTraceLab/vacfeed/pkg/chanmap"
	"github.com/OpenTraceLab/vacfeed/pkg/instrument"
	"github.com/OpenTraceLab/vacfeed/pkg/procedure"
	"github.com/OpenTraceLab/vacfeed/pkg/report"
)

var (
	runContinuity bool
	runHipot      bool
	runPinout     bool

	// Simulator-only flags
	simOpen      []string
	simLeak      []string
	simSupplyOff bool
)

// errTestsFailed is returned when a selected test did not pass, so the
// process exits non-zero.
var errTestsFailed = errors.New("not all tests passed")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the selected feedthrough tests",
	Long: `Run the selected tests over one instrument session, always in the order
continuity and load, hi-pot, pinout. Each test writes its transcript to the
console and to a report file, and ends with a PASSED/FAILED message and tone
on the instrument front panel.

Examples:
  # Continuity and hi-pot on the default mainframe
  vacfeed run --cont-load --hipot --name SN042

  # Simulated bench with a leaking 44-pin net
  vacfeed run -p -t sim --sim-leak 12=2e5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var kinds []procedure.Kind
		if runContinuity {
			kinds = append(kinds, procedure.Continuity)
		}
		if runHipot {
			kinds = append(kinds, procedure.Hipot)
		}
		if runPinout {
			kinds = append(kinds, procedure.Pinout)
		}
		if len(kinds) == 0 {
			return fmt.Errorf("select at least one test (--cont-load, --hipot, --pinout)")
		}
		return runTests(kinds)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVarP(&runContinuity, "cont-load", "c", false, "run the continuity and load test")
	runCmd.Flags().BoolVarP(&runHipot, "hipot", "p", false, "run the hi-pot isolation test")
	runCmd.Flags().BoolVarP(&runPinout, "pinout", "o", false, "run the pinout test")

	for _, k := range procedure.Kinds {
		rootCmd.AddCommand(shortcut(k))
	}

	pf := rootCmd.PersistentFlags()
	pf.StringArrayVar(&simOpen, "sim-open", nil, "simulator: broken wire as pin37:pin44 (repeatable)")
	pf.StringArrayVar(&simLeak, "sim-leak", nil, "simulator: insulation resistance of a 44-pin net as pin44=ohms (repeatable)")
	pf.BoolVar(&simSupplyOff, "sim-supply-off", false, "simulator: both supplies switched off")
}

func shortcut(k procedure.Kind) *cobra.Command {
	return &cobra.Command{
		Use:   k.String(),
		Short: "Run the " + k.Title() + " test",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests([]procedure.Kind{k})
		},
	}
}

func runTests(kinds []procedure.Kind) error {
	cfg, err := station()
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}

	m, err := chanmap.LoadFile(cfg.ChannelMap)
	if err != nil {
		return err
	}
	if verbose {
		fmt.Printf("Loaded %d rows from %s\n", m.Len(), cfg.ChannelMap)
	}

	opts := cfg.InstrumentOptions()
	opts.Logger = logger
	if opts.Transport == string(instrument.InterfaceKindSim) {
		if opts.Sim, err = simulatedBench(m); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	session, err := instrument.Open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			level.Warn(logger).Log("msg", "closing instrument session", "err", err)
		}
	}()

	reg := prometheus.NewRegistry()
	writer := report.NewWriter(cfg.ReportsDir, operatorTag, os.Stdout, logger)
	env := procedure.Env{
		Link:     session,
		Map:      m,
		Settings: cfg.Settings(),
		Sink:     writer,
		Feedback: instrument.NewPanel(session),
		Observer: metrics.NewRecorder(reg),
		Logger:   logger,
	}

	failed := 0
	var runErr error
	for _, k := range kinds {
		res, err := procedure.Run(ctx, env, k)
		if err != nil {
			runErr = fmt.Errorf("%s test: %w", k.Title(), err)
			break
		}
		if !res.Passed {
			failed++
		}
	}

	if len(writer.Paths()) > 0 {
		fmt.Println("\nReports:")
		for _, p := range writer.Paths() {
			fmt.Printf("  %s\n", p)
		}
	}
	if metricsFile != "" {
		if err := metrics.WriteTextfile(metricsFile, reg); err != nil {
			level.Error(logger).Log("msg", "writing metrics", "err", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d: %w", failed, len(kinds), errTestsFailed)
	}
	return nil
}

// simulatedBench builds a simulated mainframe wired to a healthy fixture
// for m, with the faults requested on the command line.
func simulatedBench(m *chanmap.Map) (*instrument.Sim, error) {
	b := bench.New(m)
	for _, s := range simOpen {
		pin37, pin44, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("--sim-open %q: want pin37:pin44", s)
		}
		p37, err := chanmap.ParseLabel(pin37)
		if err != nil {
			return nil, fmt.Errorf("--sim-open %q: %w", s, err)
		}
		p44, err := chanmap.ParseLabel(pin44)
		if err != nil {
			return nil, fmt.Errorf("--sim-open %q: %w", s, err)
		}
		b.Break(p37, p44)
	}
	for _, s := range simLeak {
		pin44, value, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("--sim-leak %q: want pin44=ohms", s)
		}
		p44, err := chanmap.ParseLabel(pin44)
		if err != nil {
			return nil, fmt.Errorf("--sim-leak %q: %w", s, err)
		}
		ohms, err := strconv.ParseFloat(value, 64)
		if err != nil || !(ohms > 0) {
			return nil, fmt.Errorf("--sim-leak %q: insulation must be a positive resistance", s)
		}
		b.Leak(p44, ohms)
	}
	if simSupplyOff {
		b.Supply5 = 0
		b.Supply250 = 0
	}

	sim := instrument.NewSim()
	b.Attach(sim)
	return sim, nil
}
