package can

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ipfs/go-cid"
)

// DefaultRequestTimeout bounds one gateway round trip.
const DefaultRequestTimeout = 10 * time.Second

// Gateway is the CAN gateway contract: upload and remove immutable objects,
// publish a mutable name pointing at one of them.
type Gateway interface {
	Upload(ctx context.Context, id cid.Cid, data []byte) error
	Publish(ctx context.Context, name string, id cid.Cid, sequence uint64) error
	Remove(ctx context.Context, id cid.Cid) error
}

// HTTPGateway talks to a CAN gateway over its REST surface.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
}

// NewHTTPGateway builds a gateway client for the given base URL.
func NewHTTPGateway(baseURL string) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultRequestTimeout},
	}
}

// Upload stores an immutable object under its CID. The operation is
// idempotent: re-uploading existing content succeeds.
func (g *HTTPGateway) Upload(ctx context.Context, id cid.Cid, data []byte) error {
	url := fmt.Sprintf("%s/api/v0/objects/%s", g.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	return g.do(req)
}

// publishBody is the JSON payload of a name publication.
type publishBody struct {
	CID      string `json:"cid"`
	Sequence uint64 `json:"sequence"`
}

// Publish points the mutable name at the object. The gateway rejects
// publications whose sequence does not exceed the current one.
func (g *HTTPGateway) Publish(ctx context.Context, name string, id cid.Cid, sequence uint64) error {
	body, err := json.Marshal(publishBody{CID: id.String(), Sequence: sequence})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/api/v0/names/%s", g.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return g.do(req)
}

// Remove deletes an object. Missing objects are not an error.
func (g *HTTPGateway) Remove(ctx context.Context, id cid.Cid) error {
	url := fmt.Sprintf("%s/api/v0/objects/%s", g.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	return g.do(req)
}

func (g *HTTPGateway) do(req *http.Request) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("CAN gateway request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 ||
		req.Method == http.MethodDelete && resp.StatusCode == http.StatusNotFound {
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("CAN gateway returned %s for %s %s: %s",
		resp.Status, req.Method, req.URL.Path, bytes.TrimSpace(detail))
}
