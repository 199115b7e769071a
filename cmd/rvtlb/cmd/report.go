package cmd

import (
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/rvtlb/datarecording"
	"github.com/sarchlab/rvtlb/mem/trace"
)

var reportCmd = &cobra.Command{
	Use:   "report <file.sqlite3>",
	Short: "Summarize a recorded run.",
	Long: `report reads a SQLite file written with --recorder sqlite and ` +
		`prints the run properties and the number of TLB events per store ` +
		`and hook position.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(args[0]); err != nil {
		return err
	}

	reader := datarecording.NewReader(args[0])
	defer reader.Close()

	ctx := cmd.Context()

	tables, err := reader.StoredTables(ctx)
	if err != nil {
		return err
	}

	out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

	if slices.Contains(tables, datarecording.ExecInfoTable) {
		reader.MapTable(datarecording.ExecInfoTable, datarecording.ExecInfo{})

		infos, _, err := reader.Query(ctx, datarecording.ExecInfoTable,
			datarecording.QueryParams{})
		if err != nil {
			return err
		}

		for _, i := range infos {
			info := i.(*datarecording.ExecInfo)
			fmt.Fprintf(out, "%s:\t%s\n", info.Property, info.Value)
		}

		fmt.Fprintln(out)
	}

	if !slices.Contains(tables, trace.TableName) {
		return out.Flush()
	}

	summary, err := trace.Summarize(ctx, reader)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "TLB\tCLASS\tEVENT\tCOUNT")

	for _, c := range summary {
		fmt.Fprintf(out, "%s\t%s\t%s\t%d\n", c.TLB, c.Class, c.What, c.Events)
	}

	return out.Flush()
}
