package cmd

import (
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

type tunnelRequestBody struct {
	Method  string              `json:"method"`
	Path    string              `json:"path"`
	Headers map[string][]string `json:"headers,omitempty"`
	Body    []byte              `json:"body,omitempty"`
}

var (
	requestMethod    string
	requestData      string
	requestTransport string
)

var requestCmd = &cobra.Command{
	Use:   "request <user> <printer> <path>",
	Short: "Send a request to a printer through the tunnel",
	Long: `Send an HTTP-shaped request to the agent of a printer and print the
response body. The response status and reference go to stderr.`,
	Args: cobra.ExactArgs(3),
	RunE: runRequest,
}

func init() {
	rootCmd.AddCommand(requestCmd)
	requestCmd.Flags().StringVarP(&requestMethod, "method", "X", http.MethodGet, "request method")
	requestCmd.Flags().StringVarP(&requestData, "data", "d", "", "request body, sent as application/json")
	requestCmd.Flags().StringVar(&requestTransport, "transport", "", "transport label for traffic stats")
}

func requestPath(user, printer, transport string) string {
	path := fmt.Sprintf("/api/v1/users/%s/printers/%s/requests", url.PathEscape(user), url.PathEscape(printer))
	if transport != "" {
		path += "?transport=" + url.QueryEscape(transport)
	}
	return path
}

func runRequest(cmd *cobra.Command, args []string) error {
	body := tunnelRequestBody{Method: requestMethod, Path: args[2]}
	if requestData != "" {
		body.Body = []byte(requestData)
		body.Headers = map[string][]string{"Content-Type": {"application/json"}}
	}

	client := NewAPIClient()
	resp, err := client.Post(requestPath(args[0], args[1], requestTransport), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGatewayTimeout {
		return fmt.Errorf("printer did not respond in time")
	}
	// Errors raised by the gateway itself carry no reference.
	ref := resp.Header.Get("X-Tunnel-Ref")
	if ref == "" && resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(data))
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "status %d ref %s\n", resp.StatusCode, ref)
	_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
	return err
}
