package cmd

import (
	"fmt"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type cacheResult struct {
	PrinterID int64             `json:"printerId" yaml:"printerId"`
	Kind      string            `json:"kind" yaml:"kind"`
	Fields    map[string]string `json:"fields" yaml:"fields"`
}

var cacheCmd = &cobra.Command{
	Use:   "cache <printer> <status|pic|settings>",
	Short: "Show a cached printer snapshot",
	Args:  cobra.ExactArgs(2),
	RunE:  runCache,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
}

func runCache(cmd *cobra.Command, args []string) error {
	client := NewAPIClient()
	resp, err := client.Get(fmt.Sprintf("/api/v1/printers/%s/cache/%s", url.PathEscape(args[0]), url.PathEscape(args[1])))
	if err != nil {
		return err
	}
	var result cacheResult
	if err := client.HandleResponse(resp, &result); err != nil {
		return err
	}
	return PrintResource(cmd.OutOrStdout(), result, GetOutputFormat(), func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "FIELD\tVALUE")
		for _, k := range sortedKeys(result.Fields) {
			fmt.Fprintf(w, "%s\t%s\n", k, result.Fields[k])
		}
	})
}
