package local

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// predictor talks to a running model server over HTTP. DJL and TGI
// expose the same surface: GET /ping for health, POST /invocations for
// inference.
type predictor struct {
	endpoint string
	client   *http.Client
}

func newPredictor(endpoint string) *predictor {
	return &predictor{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

// Endpoint implements serve.Predictor.
func (p *predictor) Endpoint() string {
	return p.endpoint
}

// Invoke implements serve.Predictor.
func (p *predictor) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.endpoint+"/invocations", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("invocation returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return body, nil
}

// ping hits the health endpoint with a short per-attempt timeout.
func (p *predictor) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/ping", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping returned %d", resp.StatusCode)
	}
	return nil
}
