package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/browser"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/rvtlb/workload"
)

var (
	openBrowser  bool
	waitAtFinish bool
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a synthetic multi-address-space workload.",
	Long: `bench maps a set of user address spaces that share a global ` +
		`kernel megapage, then issues random accesses with periodic ` +
		`context switches and sfence.vma. It prints a JSON report.`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)

	f := benchCmd.Flags()
	f.Int64("seed", 0, "random seed")
	f.Int("accesses", 0, "number of accesses")
	f.Int("spaces", 0, "number of address spaces")
	f.Int("pages", 0, "user pages per address space")
	f.Int("switch-every", 0, "accesses between context switches")
	f.Int("fence-every", 0, "accesses between sfence.vma")
	f.BoolVar(&openBrowser, "open-browser", false,
		"open the monitor in a browser, implies --monitor")
	f.BoolVar(&waitAtFinish, "wait", false,
		"keep the monitor running until interrupted")
}

func workloadFromFlags(cmd *cobra.Command) workload.Synthetic {
	w := cfg.Workload
	f := cmd.Flags()

	if f.Changed("seed") {
		w.Seed, _ = f.GetInt64("seed")
	}

	ints := map[string]*int{
		"accesses":     &w.Accesses,
		"spaces":       &w.NumSpaces,
		"pages":        &w.PagesPerSpace,
		"switch-every": &w.SwitchEvery,
		"fence-every":  &w.FenceEvery,
	}
	for name, field := range ints {
		if f.Changed(name) {
			*field, _ = f.GetInt(name)
		}
	}

	return workload.Synthetic{
		Seed:          w.Seed,
		NumSpaces:     w.NumSpaces,
		PagesPerSpace: w.PagesPerSpace,
		Accesses:      w.Accesses,
		SwitchEvery:   w.SwitchEvery,
		FenceEvery:    w.FenceEvery,
	}
}

func runBench(cmd *cobra.Command, _ []string) error {
	if openBrowser {
		monitorOn = true
	}

	w := workloadFromFlags(cmd)

	s, cleanup, err := buildSimulation()
	if err != nil {
		return err
	}
	defer cleanup()

	s.RecordExecInfo("Seed", fmt.Sprint(w.Seed))
	s.RecordExecInfo("Accesses", fmt.Sprint(w.Accesses))

	if monitor := s.GetMonitor(); monitor != nil {
		bar := monitor.CreateProgressBar("Synthetic", uint64(w.Accesses))
		defer monitor.CompleteProgressBar(bar)

		w.Progress = bar

		if openBrowser {
			if err := browser.OpenURL(s.MonitorURL()); err != nil {
				logrus.WithError(err).Warn("cannot open browser")
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"seed":     w.Seed,
		"accesses": w.Accesses,
		"spaces":   w.NumSpaces,
	}).Info("running synthetic workload")

	report, err := w.Run(cmd.Context(), s.Machine())
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"faults":   report.Faults,
		"walks":    report.Walks,
		"itlb_hit": report.TLB.Instruction.HitRate(),
		"dtlb_hit": report.TLB.Data.HitRate(),
	}).Info("workload finished")

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if err := enc.Encode(report); err != nil {
		return err
	}

	if waitAtFinish && s.GetMonitor() != nil {
		logrus.Infof("monitor still serving at %s, press Ctrl-C to quit",
			s.MonitorURL())
		<-cmd.Context().Done()
	}

	return nil
}
