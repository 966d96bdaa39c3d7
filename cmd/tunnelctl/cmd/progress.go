package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type progressResult struct {
	PrintID int64 `json:"printId" yaml:"printId"`
	Percent int   `json:"percent" yaml:"percent"`
}

var progressCmd = &cobra.Command{
	Use:   "progress <printID> [set <percent>]",
	Short: "Show or set the completion percentage of a print",
	Args: func(cmd *cobra.Command, args []string) error {
		switch {
		case len(args) == 1:
			return nil
		case len(args) == 3 && args[1] == "set":
			return nil
		}
		return fmt.Errorf("usage: %s", cmd.Use)
	},
	RunE: runProgress,
}

func init() {
	rootCmd.AddCommand(progressCmd)
}

func runProgress(cmd *cobra.Command, args []string) error {
	printID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || printID <= 0 {
		return fmt.Errorf("print id must be a positive integer, got %q", args[0])
	}
	client := NewAPIClient()
	path := fmt.Sprintf("/api/v1/prints/%d/progress", printID)

	var result progressResult
	if len(args) == 3 {
		pct, err := strconv.Atoi(args[2])
		if err != nil || pct < 0 || pct > 100 {
			return fmt.Errorf("percent must be within 0-100, got %q", args[2])
		}
		resp, err := client.Put(path, map[string]int{"percent": pct})
		if err != nil {
			return err
		}
		if err := client.HandleResponse(resp, &result); err != nil {
			return err
		}
	} else {
		resp, err := client.Get(path)
		if err != nil {
			return err
		}
		if err := client.HandleResponse(resp, &result); err != nil {
			return err
		}
	}

	return PrintResource(cmd.OutOrStdout(), result, GetOutputFormat(), func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "PRINT\tPROGRESS")
		fmt.Fprintf(w, "%d\t%d%%\n", result.PrintID, result.Percent)
	})
}
