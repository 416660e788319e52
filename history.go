package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/gpu-pulse/cache"
	"gitlab.com/tinyland/lab/gpu-pulse/internal/format"
)

const titleWidth = 36

var historyClear bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the saved result of each benchmark run with bench",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := cache.NewStore(cache.DefaultDir(), nil)
		if err != nil {
			return err
		}
		if historyClear {
			return store.Clear()
		}
		printHistory(store, cmd.OutOrStdout())
		return nil
	},
}

func init() {
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "delete all saved results")
	rootCmd.AddCommand(historyCmd)
}

func printHistory(store *cache.Store, w io.Writer) {
	runs := store.Runs()
	if len(runs) == 0 {
		fmt.Fprintln(w, "no saved benchmark results")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tVIA\tSAVED\tRESULT\tSPEEDUP\tSERVER")
	for _, r := range runs {
		badge := r.Panel.Badge
		if badge == "" {
			badge = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Kind, r.Via, format.FormatTimeSince(r.At), format.TruncateWithEllipsis(r.Panel.Title, titleWidth), badge, r.Server)
	}
	_ = tw.Flush()
}
