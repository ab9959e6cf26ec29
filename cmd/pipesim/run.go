package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/browser"
	"github.com/pkg/errors"
	"github.com/sarchlab/pipesim/examples/pipeline"
	"github.com/sarchlab/pipesim/monitoring"
	"github.com/sarchlab/pipesim/sim/module"
	"github.com/sarchlab/pipesim/sim/port"
	"github.com/sarchlab/pipesim/tracing"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// autoSQLite is the value of a bare --sqlite flag. The database then gets a
// generated name.
const autoSQLite = "auto"

type runOptions struct {
	cycles       uint64
	instructions int
	logSelector  string
	topology     string
	output       string
	traceFirst   uint64
	traceLast    uint64
	hasFirst     bool
	hasLast      bool
	sqlite       string
	monitor      bool
	monitorPort  int
	openBrowser  bool
	bandwidth    uint32
	latency      uint32
	envFile      string
}

func (o runOptions) window() tracing.Window {
	w := tracing.Unbounded()

	if o.hasFirst {
		w = w.From(o.traceFirst)
	}

	if o.hasLast {
		w = w.Until(o.traceLast)
	}

	return w
}

func (o runOptions) traced() bool {
	return o.output != "" || o.sqlite != ""
}

func (o runOptions) validate() error {
	if o.instructions < 0 {
		return errors.Errorf("--instructions must not be negative, got %d",
			o.instructions)
	}

	if o.bandwidth == 0 {
		return errors.New("--bandwidth must be at least 1")
	}

	if o.hasFirst && o.hasLast && o.traceFirst > o.traceLast {
		return errors.Errorf("--trace-first %d is after --trace-last %d",
			o.traceFirst, o.traceLast)
	}

	if o.openBrowser && !o.monitor {
		return errors.New("--open-browser requires --monitor")
	}

	return nil
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the demo pipeline.",
		Long: `Run feeds a synthetic program through a five-stage pipeline. ` +
			`Defaults for --output, --log and --topology can be given as ` +
			`PIPESIM_OUTPUT, PIPESIM_LOG and PIPESIM_TOPOLOGY in a .env file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnv(cmd, &opts); err != nil {
				return err
			}

			opts.hasFirst = cmd.Flags().Changed("trace-first")
			opts.hasLast = cmd.Flags().Changed("trace-last")

			if err := opts.validate(); err != nil {
				return err
			}

			return runSimulation(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := runCmd.Flags()
	flags.Uint64Var(&opts.cycles, "cycles", 0,
		"Maximum number of cycles to simulate, 0 for no limit")
	flags.IntVar(&opts.instructions, "instructions", 64,
		"Number of instructions in the program")
	flags.StringVar(&opts.logSelector, "log", "",
		"Modules to log, comma separated, a leading ! turns a subtree off")
	flags.StringVar(&opts.topology, "topology", "",
		"File to dump the module topology into")
	flags.StringVarP(&opts.output, "output", "o", "",
		"Base name of the trace file, .json is appended")
	flags.Uint64Var(&opts.traceFirst, "trace-first", 0,
		"First cycle in which entering instructions are traced")
	flags.Uint64Var(&opts.traceLast, "trace-last", 0,
		"Last cycle in which entering instructions are traced")
	flags.StringVar(&opts.sqlite, "sqlite", "",
		"Also store the trace in <path>.sqlite3")
	flags.Lookup("sqlite").NoOptDefVal = autoSQLite
	flags.BoolVar(&opts.monitor, "monitor", false,
		"Serve a live monitor of the run")
	flags.IntVar(&opts.monitorPort, "monitor-port", 0,
		"Port of the monitor, a random port is used if not set")
	flags.BoolVar(&opts.openBrowser, "open-browser", false,
		"Open the monitor in a browser")
	flags.Uint32Var(&opts.bandwidth, "bandwidth", 1,
		"Instructions passed between stages per cycle")
	flags.Uint32Var(&opts.latency, "latency", 1,
		"Cycles between two stages")
	flags.StringVar(&opts.envFile, "env-file", ".env",
		"File to read default options from")

	return runCmd
}

// loadEnv fills the options that were not given on the command line from the
// environment, after reading the env file if there is one.
func loadEnv(cmd *cobra.Command, opts *runOptions) error {
	if opts.envFile != "" {
		err := godotenv.Load(opts.envFile)
		if err != nil && !os.IsNotExist(errors.Cause(err)) {
			return errors.Wrapf(err, "reading %s", opts.envFile)
		}
	}

	defaults := []struct {
		flag string
		env  string
		dst  *string
	}{
		{"output", "PIPESIM_OUTPUT", &opts.output},
		{"log", "PIPESIM_LOG", &opts.logSelector},
		{"topology", "PIPESIM_TOPOLOGY", &opts.topology},
	}

	for _, d := range defaults {
		if cmd.Flags().Changed(d.flag) {
			continue
		}

		if v, found := os.LookupEnv(d.env); found {
			*d.dst = v
		}
	}

	return nil
}

type simulation struct {
	opts     runOptions
	stdout   io.Writer
	stderr   io.Writer
	root     *module.Root
	pipeline *pipeline.Pipeline
	monitor  *monitoring.Monitor
	progress *monitoring.ProgressBar
}

// runSimulation builds and runs the pipeline. The topology and the trace are
// saved on every way out, errors and panics included.
func runSimulation(opts runOptions, stdout, stderr io.Writer) (err error) {
	s := &simulation{
		opts:   opts,
		stdout: stdout,
		stderr: stderr,
	}

	s.root = module.NewRoot("Sim", module.WithLogOutput(stdout))

	rec := s.root.Recorder()
	rec.RegisterExitFlush(opts.output)
	stopSignals := flushOnSignal()

	defer func() {
		stopSignals()

		if dumpErr := s.root.DumpTopology(opts.topology); dumpErr != nil && err == nil {
			err = &simError{errors.Wrap(dumpErr, "dumping topology")}
		}

		if flushErr := rec.SaveToFile(opts.output); flushErr != nil && err == nil {
			err = &simError{errors.Wrap(flushErr, "saving trace")}
		}
	}()

	if err := s.build(); err != nil {
		return &simError{err}
	}

	if opts.monitor {
		if err := s.startMonitor(); err != nil {
			return &simError{err}
		}

		defer s.stopMonitor()
	}

	cycles, err := s.run()
	if err != nil {
		return &simError{err}
	}

	fmt.Fprintf(stdout, "Simulated %d cycles, retired %d of %d instructions\n",
		cycles, s.pipeline.Retired(), opts.instructions)

	if lost := s.pipeline.Lost(); lost > 0 {
		fmt.Fprintf(stderr, "Warning: %d instructions were dropped between stages\n",
			lost)
	}

	return nil
}

func (s *simulation) build() error {
	rec := s.root.Recorder()

	if s.opts.sqlite != "" {
		path := s.opts.sqlite
		if path == autoSQLite {
			path = ""
		}

		w := tracing.NewSQLiteWriter(path)
		if err := w.Init(); err != nil {
			return err
		}

		rec.AddWriter(w)
	}

	if s.opts.traced() {
		rec.InitTrackData(s.opts.window())
	}

	p, err := pipeline.MakeBuilder().
		WithRoot(s.root).
		WithBandwidth(s.opts.bandwidth).
		WithLatency(s.opts.latency).
		WithProgram(pipeline.SampleProgram(s.opts.instructions)).
		Build("Core")
	if err != nil {
		return err
	}

	s.pipeline = p

	if err := s.root.InitPorts(); err != nil {
		return err
	}

	s.root.EnableLogging(s.opts.logSelector)

	return nil
}

func (s *simulation) startMonitor() error {
	s.monitor = monitoring.NewMonitor()
	if s.opts.monitorPort > 0 {
		s.monitor.WithPortNumber(s.opts.monitorPort)
	}

	s.monitor.RegisterRoot(s.root)

	if err := s.monitor.StartServer(); err != nil {
		return errors.Wrap(err, "starting monitor")
	}

	s.progress = s.monitor.CreateProgressBar(
		"Instructions", uint64(s.opts.instructions))

	if s.opts.openBrowser {
		if err := browser.OpenURL(s.monitor.URL()); err != nil {
			fmt.Fprintf(s.stderr, "Failed to open browser: %v\n", err)
		}
	}

	return nil
}

func (s *simulation) stopMonitor() {
	s.monitor.CompleteProgressBar(s.progress)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := s.monitor.StopServer(ctx); err != nil {
		fmt.Fprintf(s.stderr, "Failed to stop monitor: %v\n", err)
	}
}

func (s *simulation) run() (uint64, error) {
	var cycle uint64

	for !s.pipeline.Done() {
		if s.opts.cycles > 0 && cycle >= s.opts.cycles {
			break
		}

		retired := s.pipeline.Retired()

		if err := s.pipeline.Tick(port.Cycle(cycle)); err != nil {
			return cycle, err
		}

		if s.progress != nil {
			s.progress.IncrementFinished(s.pipeline.Retired() - retired)
		}

		cycle++
	}

	return cycle, nil
}

// flushOnSignal exits through atexit on SIGINT and SIGTERM, so the registered
// flushes still run. The returned function stops listening.
func flushOnSignal() func() {
	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})

	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigs:
			fmt.Fprintf(os.Stderr, "Received %s, saving trace\n", sig)
			atexit.Exit(exitSimError)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
