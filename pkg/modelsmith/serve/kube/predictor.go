package kube

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// servicePredictor invokes a model server through its cluster service.
// Callers run either in-cluster or behind a port-forward that resolves
// the service DNS name.
type servicePredictor struct {
	endpoint string
}

// Endpoint implements serve.Predictor.
func (p *servicePredictor) Endpoint() string {
	return p.endpoint
}

// Invoke implements serve.Predictor.
func (p *servicePredictor) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.endpoint+"/invocations", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Do(req)
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
