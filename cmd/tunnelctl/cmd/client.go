package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// APIClient talks to the tunneld HTTP API.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a client for the configured server.
func NewAPIClient() *APIClient {
	server := viper.GetString("server")
	if server == "" {
		server = "http://localhost:8080"
	}
	return &APIClient{
		baseURL: strings.TrimSuffix(server, "/"),
		// Tunneled requests may wait up to the gateway response timeout.
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

func (c *APIClient) doRequest(method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// Get performs a GET request.
func (c *APIClient) Get(path string) (*http.Response, error) {
	return c.doRequest(http.MethodGet, path, nil)
}

// Post performs a POST request with an optional JSON body.
func (c *APIClient) Post(path string, body interface{}) (*http.Response, error) {
	return c.withJSON(http.MethodPost, path, body)
}

// Put performs a PUT request with a JSON body.
func (c *APIClient) Put(path string, body interface{}) (*http.Response, error) {
	return c.withJSON(http.MethodPut, path, body)
}

// Delete performs a DELETE request.
func (c *APIClient) Delete(path string) (*http.Response, error) {
	return c.doRequest(http.MethodDelete, path, nil)
}

func (c *APIClient) withJSON(method, path string, body interface{}) (*http.Response, error) {
	if body == nil {
		return c.doRequest(method, path, nil)
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("failed to encode body: %w", err)
	}
	return c.doRequest(method, path, &buf)
}

// HandleResponse checks the status and decodes a JSON body into v.
func (c *APIClient) HandleResponse(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
