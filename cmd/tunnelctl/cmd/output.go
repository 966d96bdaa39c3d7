package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// OutputFormat represents the output format type.
type OutputFormat string

const (
	OutputFormatYAML  OutputFormat = "yaml"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table" // Default
)

// GetOutputFormat returns the output format from viper config or flag.
func GetOutputFormat() OutputFormat {
	return parseOutputFormat(viper.GetString("output"))
}

func parseOutputFormat(format string) OutputFormat {
	switch strings.ToLower(format) {
	case "yaml", "y":
		return OutputFormatYAML
	case "json", "j":
		return OutputFormatJSON
	default:
		return OutputFormatTable
	}
}

// PrintResource prints v as JSON or YAML. Table output is command specific;
// table is passed the writer when the format is table.
func PrintResource(w io.Writer, v interface{}, format OutputFormat, table func(w *tabwriter.Writer)) error {
	switch format {
	case OutputFormatYAML:
		return printYAML(w, v)
	case OutputFormatJSON:
		return printJSON(w, v)
	}
	if table == nil {
		return printJSON(w, v)
	}
	tw := NewTabWriter(w)
	table(tw)
	return tw.Flush()
}

func printYAML(w io.Writer, v interface{}) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(v)
}

func printJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// sortedKeys returns the keys of m in lexical order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NewTabWriter creates a new tabwriter for table output.
func NewTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
}

// PrintError prints an error message to stderr.
func PrintError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
