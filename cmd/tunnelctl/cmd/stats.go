package cmd

import (
	"fmt"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type statsResult struct {
	Month  string           `json:"month" yaml:"month"`
	Key    string           `json:"key" yaml:"key"`
	Fields map[string]int64 `json:"fields" yaml:"fields"`
}

var (
	statsUser    string
	statsPrinter string
)

var statsCmd = &cobra.Command{
	Use:   "stats <YYYYMM>",
	Short: "Show the traffic counters of a month",
	Long: `Show the byte counters of one monthly traffic bucket.

With --user the counters are narrowed to that user, with --user and
--printer to one printer.`,
	Args: cobra.ExactArgs(1),
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVar(&statsUser, "user", "", "narrow to a user id")
	statsCmd.Flags().StringVar(&statsPrinter, "printer", "", "narrow to a printer id (requires --user)")
}

func statsPath(month, user, printer string) string {
	q := url.Values{}
	if user != "" {
		q.Set("user", user)
	}
	if printer != "" {
		q.Set("printer", printer)
	}
	path := "/api/v1/stats/" + url.PathEscape(month)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return path
}

func runStats(cmd *cobra.Command, args []string) error {
	client := NewAPIClient()
	resp, err := client.Get(statsPath(args[0], statsUser, statsPrinter))
	if err != nil {
		return err
	}

	var result statsResult
	if err := client.HandleResponse(resp, &result); err != nil {
		return err
	}

	return PrintResource(cmd.OutOrStdout(), result, GetOutputFormat(), func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "FIELD\tBYTES")
		for _, k := range sortedKeys(result.Fields) {
			fmt.Fprintf(w, "%s\t%d\n", k, result.Fields[k])
		}
	})
}
