package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/rvtlb/workload"
)

// ErrMismatch is returned when a replayed access does not match its
// expectation.
var ErrMismatch = errors.New("expectation mismatch")

var replayCmd = &cobra.Command{
	Use:   "replay <script>",
	Short: "Replay an access script and check its expectations.",
	Long: `replay runs the commands of a script (map, unmap, satp, priv, ` +
		`status, access, sfence) and prints one line per access. It fails ` +
		`if any access disagrees with its "-> paddr" or "-> fault" ` +
		`expectation.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	script, err := workload.ParseScript(f)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	s, cleanup, err := buildSimulation()
	if err != nil {
		return err
	}
	defer cleanup()

	s.RecordExecInfo("Script", args[0])

	outcomes, err := script.Run(cmd.Context(), s.Machine())
	for _, o := range outcomes {
		fmt.Fprintln(cmd.OutOrStdout(), o.String())
	}

	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	mismatches := 0

	for _, o := range outcomes {
		if o.Mismatch {
			mismatches++

			logrus.WithField("line", o.Line).Error("unexpected outcome")
		}
	}

	stats := s.TLB().Stats()
	logrus.WithFields(logrus.Fields{
		"accesses": len(outcomes),
		"walks":    s.MMU().NumWalks(),
		"flushes":  stats.Flushes,
	}).Info("replay finished")

	if mismatches > 0 {
		return fmt.Errorf("%w: %d of %d accesses", ErrMismatch,
			mismatches, len(outcomes))
	}

	return nil
}
