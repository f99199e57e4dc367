package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// client is a thin HTTP client for the Atrium API. It authenticates with a
// bearer API key, so commands only work against resources the key's
// workspace owns.
type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func newClient(baseURL, token string) (*client, error) {
	if token == "" {
		token = os.Getenv("ATRIUM_API_KEY")
	}
	if token == "" {
		return nil, fmt.Errorf("an API key is required: pass -token or set ATRIUM_API_KEY")
	}
	return &client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// do sends a request and decodes the JSON response into out (when out is
// non-nil). Non-2xx responses are turned into errors using the server's
// error body.
func (c *client) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(resp.Body)
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return fmt.Errorf("%s (HTTP %d)", body.Error, resp.StatusCode)
	}
	return fmt.Errorf("unexpected response: HTTP %d", resp.StatusCode)
}

// listEnvelope matches the server's list responses.
type listEnvelope struct {
	Items json.RawMessage `json:"items"`
	Count int             `json:"count"`
}

func (c *client) list(path string, items interface{}) error {
	var env listEnvelope
	if err := c.do(http.MethodGet, path, nil, &env); err != nil {
		return err
	}
	return json.Unmarshal(env.Items, items)
}
