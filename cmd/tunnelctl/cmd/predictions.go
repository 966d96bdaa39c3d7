package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type countResult struct {
	PrintID int64 `json:"printId" yaml:"printId"`
	Count   int64 `json:"count" yaml:"count"`
}

type prediction struct {
	Timestamp  string  `json:"timestamp" yaml:"timestamp"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

type highPredictionsResult struct {
	PrintID     int64        `json:"printId" yaml:"printId"`
	Predictions []prediction `json:"predictions" yaml:"predictions"`
}

var (
	predictionsHigh  bool
	predictionsReset bool
)

var predictionsCmd = &cobra.Command{
	Use:   "predictions <printID>",
	Short: "Show the failure prediction counters of a print",
	Args:  cobra.ExactArgs(1),
	RunE:  runPredictions,
}

func init() {
	rootCmd.AddCommand(predictionsCmd)
	predictionsCmd.Flags().BoolVar(&predictionsHigh, "high", false, "list the retained high-confidence predictions")
	predictionsCmd.Flags().BoolVar(&predictionsReset, "reset", false, "reset the prediction count")
}

func runPredictions(cmd *cobra.Command, args []string) error {
	printID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || printID <= 0 {
		return fmt.Errorf("print id must be a positive integer, got %q", args[0])
	}
	client := NewAPIClient()
	base := fmt.Sprintf("/api/v1/prints/%d/predictions", printID)

	switch {
	case predictionsReset:
		resp, err := client.Delete(base)
		if err != nil {
			return err
		}
		if err := client.HandleResponse(resp, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "prediction count of print %d reset\n", printID)
		return nil

	case predictionsHigh:
		resp, err := client.Get(base + "/high")
		if err != nil {
			return err
		}
		var result highPredictionsResult
		if err := client.HandleResponse(resp, &result); err != nil {
			return err
		}
		return PrintResource(cmd.OutOrStdout(), result, GetOutputFormat(), func(w *tabwriter.Writer) {
			fmt.Fprintln(w, "TIMESTAMP\tCONFIDENCE")
			for _, p := range result.Predictions {
				fmt.Fprintf(w, "%s\t%.4f\n", p.Timestamp, p.Confidence)
			}
		})
	}

	resp, err := client.Get(base)
	if err != nil {
		return err
	}
	var result countResult
	if err := client.HandleResponse(resp, &result); err != nil {
		return err
	}
	return PrintResource(cmd.OutOrStdout(), result, GetOutputFormat(), func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "PRINT\tPREDICTIONS")
		fmt.Fprintf(w, "%d\t%d\n", result.PrintID, result.Count)
	})
}
