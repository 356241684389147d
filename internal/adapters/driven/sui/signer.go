package sui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// NewHTTPSigner returns a SignerFunc backed by an external signing
// service. The service receives the base64 transaction bytes and
// answers with a serialized signature; the key material stays with
// the signer.
func NewHTTPSigner(endpoint string, timeout time.Duration) SignerFunc {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &http.Client{Timeout: timeout}

	return func(ctx context.Context, txBytes string) (string, error) {
		body, err := json.Marshal(map[string]string{"tx_bytes": txBytes})
		if err != nil {
			return "", fmt.Errorf("failed to encode signing request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("failed to create signing request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("signing request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return "", fmt.Errorf("signer returned status %d: %s", resp.StatusCode, string(data))
		}

		var out struct {
			Signature string `json:"signature"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("failed to decode signer response: %w", err)
		}
		if out.Signature == "" {
			return "", fmt.Errorf("signer returned an empty signature")
		}
		return out.Signature, nil
	}
}
