package surrogate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chazu/tensile/pkg/graph"
)

// DefaultRequestTimeout bounds remote calls when no client is supplied.
const DefaultRequestTimeout = 30 * time.Second

// RemoteModel calls a predictor service over HTTP.
type RemoteModel struct {
	endpoint string
	client   *http.Client
}

var _ Model = (*RemoteModel)(nil)

// OpenRemote probes endpoint's health route and returns a model bound to
// it. Services without a health route (404) are accepted; transport
// failures and 5xx answers are not.
func OpenRemote(ctx context.Context, endpoint string, opts LoaderOptions) (*RemoteModel, error) {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = DefaultRequestTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	m := &RemoteModel{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoint+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("surrogate: failed to create health request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("surrogate: predictor unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("surrogate: predictor health returned status %d", resp.StatusCode)
	}
	return m, nil
}

// Run posts the graph to {endpoint}/predict.
func (m *RemoteModel) Run(ctx context.Context, g *graph.Graph) ([]float32, error) {
	body, err := json.Marshal(predictRequest{
		X:         g.Rows(),
		EdgeIndex: g.EdgeRows(),
	})
	if err != nil {
		return nil, fmt.Errorf("surrogate: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("surrogate: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("surrogate: predict request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("surrogate: predictor returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("surrogate: failed to decode response: %w", err)
	}
	if out.Output != nil {
		return out.Output, nil
	}
	return out.Prediction, nil
}

// Close is a no-op; the HTTP client owns no per-model resources.
func (m *RemoteModel) Close() error { return nil }

// Endpoint returns the predictor base URL.
func (m *RemoteModel) Endpoint() string { return m.endpoint }

type predictRequest struct {
	X         [][]float32 `json:"x"`
	EdgeIndex [2][]int64  `json:"edge_index"`
}

// predictResponse accepts both "output" and the older "prediction" key.
type predictResponse struct {
	Output     []float32 `json:"output"`
	Prediction []float32 `json:"prediction"`
}
