// Package cmd provides the command-line interface of rvtlb.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/rvtlb/config"
	"github.com/sarchlab/rvtlb/datarecording"
	"github.com/sarchlab/rvtlb/mem/vm"
	"github.com/sarchlab/rvtlb/simulation"
)

var (
	configPath string
	logLevel   string
	monitorOn  bool
	memorySize config.Size

	cfg config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rvtlb",
	Short: "rvtlb runs workloads against a model of the RISC-V Sv32 TLB.",
	Long: `rvtlb runs workloads against a model of the RISC-V Sv32 TLB. ` +
		`It can replay scripted access traces and benchmark synthetic ` +
		`multi-address-space workloads, recording every TLB event.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configPath, "config", "", "YAML configuration file")
	f.StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	f.BoolVar(&monitorOn, "monitor", false, "serve the monitoring API")
	f.Int("monitor-port", 0, "port of the monitoring server")
	f.Int("entries", 0, "entries in each of the iTLB and dTLB")
	f.Var(&memorySize, "memory", "guest physical memory size, e.g. 64MB")
	f.String("recorder", "", "event recorder: none, sqlite or clickhouse")
	f.String("record-path", "", "SQLite file name without the suffix")
	f.String("clickhouse-dsn", "", "ClickHouse DSN")
	f.String("trace-csv", "", "write every TLB event to this CSV file")
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	atexit.Exit(execute())
}

// execute runs the command with Ctrl-C cancelling its context, and returns
// the exit code. The signal handler is released before the caller exits.
func execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return 1
	}

	return 0
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return err
	}

	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)

	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("entries") {
		cfg.TLBEntries, _ = f.GetInt("entries")
	}

	if f.Changed("memory") {
		cfg.MemorySize = memorySize
	}

	if f.Changed("monitor-port") {
		cfg.MonitorPort, _ = f.GetInt("monitor-port")
	}

	stringFlags := map[string]*string{
		"recorder":       &cfg.Recorder.Type,
		"record-path":    &cfg.Recorder.Path,
		"clickhouse-dsn": &cfg.Recorder.ConnStr,
		"trace-csv":      &cfg.TraceCSV,
	}
	for name, field := range stringFlags {
		if f.Changed(name) {
			*field, _ = f.GetString(name)
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"entries":  cfg.TLBEntries,
		"memory":   cfg.MemorySize.String(),
		"recorder": cfg.Recorder.Type,
	}).Debug("configuration loaded")

	return nil
}

// buildSimulation assembles the hart described by cfg. The returned function
// releases the recorder and the CSV trace.
func buildSimulation() (*simulation.Simulation, func(), error) {
	b := simulation.MakeBuilder().
		WithNumEntries(cfg.TLBEntries).
		WithMemorySize(uint64(cfg.MemorySize))

	if monitorOn {
		b = b.WithMonitorPort(cfg.MonitorPort)
	} else {
		b = b.WithoutMonitoring()
	}

	var traceFile *os.File

	if cfg.TraceCSV != "" {
		var err error

		traceFile, err = os.Create(cfg.TraceCSV)
		if err != nil {
			return nil, nil, err
		}

		tracer := vm.NewTLBTracer(traceFile)
		if err := tracer.WriteHeader(); err != nil {
			traceFile.Close()
			return nil, nil, err
		}

		b = b.WithHook(tracer)
	}

	if cfg.Recording() {
		recorder, err := datarecording.NewDataRecorderWithConfig(cfg.Recorder)
		if err != nil {
			if traceFile != nil {
				traceFile.Close()
			}

			return nil, nil, err
		}

		b = b.WithDataRecorder(recorder)
	}

	s := b.Build()
	s.RecordExecInfo("TLB Entries", fmt.Sprint(cfg.TLBEntries))
	s.RecordExecInfo("Memory Size", cfg.MemorySize.String())

	cleanup := func() {
		if err := s.Terminate(); err != nil {
			logrus.WithError(err).Error("closing recorder")
		}

		if traceFile != nil {
			if err := traceFile.Close(); err != nil {
				logrus.WithError(err).Error("closing trace")
			}
		}
	}

	return s, cleanup, nil
}
