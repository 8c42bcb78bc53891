package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// postJSON sends body to endpoint and decodes a 200 response into out.
// Non-200 responses are decoded from the {"error":{"type","message"}} shape
// that OpenAI, Groq and Anthropic share.
func postJSON(ctx context.Context, client *http.Client, name, endpoint string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &Error{Provider: name, Err: fmt.Errorf("marshaling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return &Error{Provider: name, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &Error{Provider: name, Err: fmt.Errorf("sending request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &Error{Provider: name, StatusCode: resp.StatusCode, Err: readProviderError(resp)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Provider: name, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

func readProviderError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var wire struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error.Message != "" {
		if wire.Error.Type != "" {
			return fmt.Errorf("%s: %s", wire.Error.Type, wire.Error.Message)
		}
		return errors.New(wire.Error.Message)
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return errors.New(text)
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
