// Package adapters implements the per-provider channel transports. Each
// adapter knows three things about its surface: how to verify a webhook
// subscription, how to read inbound envelopes, and how to deliver a reply.
package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const graphAPIVersion = "v20.0"

// graphClient posts JSON payloads to the Meta Graph API. Both the WhatsApp
// and Instagram adapters deliver through it.
type graphClient struct {
	baseURL string
	http    *http.Client
}

func newGraphClient(baseURL string) *graphClient {
	return &graphClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *graphClient) post(ctx context.Context, path, accessToken string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode graph payload: %w", err)
	}
	url := fmt.Sprintf("%s/%s%s", g.baseURL, graphAPIVersion, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("graph api %s: status=%d body=%s", path, resp.StatusCode, string(detail))
	}
	return nil
}
