package connector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"time"
)

// DefaultSocket is the proxy's default unix socket path.
const DefaultSocket = "/tmp/aperturedb-proxy.sock"

// ProxyClient talks to the local query proxy over a unix socket.
//
// Requests are multipart/form-data with one "query" part holding the JSON
// command list and one "blobs" part per input blob. The proxy answers
// {"json": [...], "blobs": [base64...], "status": n}.
//
// Authentication and pooling happen inside the proxy.
type ProxyClient struct {
	endpoint string
	client   *http.Client
	boundary BoundaryGenerator
	logger   *slog.Logger
}

// ProxyOption configures a ProxyClient.
type ProxyOption func(*ProxyClient)

// WithBoundary sets the multipart boundary generator.
func WithBoundary(g BoundaryGenerator) ProxyOption {
	return func(c *ProxyClient) { c.boundary = g }
}

// WithEndpoint overrides the request URL and uses a plain TCP transport.
func WithEndpoint(url string) ProxyOption {
	return func(c *ProxyClient) {
		c.endpoint = url
		c.client = &http.Client{Timeout: c.client.Timeout}
	}
}

// WithTimeout sets the per-request timeout. Zero means no timeout.
func WithTimeout(d time.Duration) ProxyOption {
	return func(c *ProxyClient) { c.client.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ProxyOption {
	return func(c *ProxyClient) { c.logger = l }
}

// NewProxyClient creates a client for the proxy listening on socket.
func NewProxyClient(socket string, opts ...ProxyOption) *ProxyClient {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socket)
		},
	}
	c := &ProxyClient{
		endpoint: "http://localhost/aperturedb",
		client:   &http.Client{Transport: transport},
		boundary: UUIDBoundary{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProxyError reports a non-2xx HTTP status from the proxy.
type ProxyError struct {
	StatusCode int
	Body       string
}

func (e *ProxyError) Error() string {
	return fmt.Sprintf("HTTP error %d from proxy: %s", e.StatusCode, e.Body)
}

// Execute implements Connector.
func (c *ProxyClient) Execute(ctx context.Context, commands []map[string]any, blobs [][]byte) (*Response, error) {
	start := time.Now()
	body, contentType, err := encodeMultipart(c.boundary.Generate(), commands, blobs)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxy request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read proxy response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("proxy returned error", "status", resp.StatusCode, "body", string(data))
		return nil, &ProxyError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	out, err := decodeResponse(data)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("query executed",
		"commands", len(commands),
		"blobs_in", len(blobs),
		"blobs_out", len(out.Blobs),
		"status", out.Status,
		"elapsed", time.Since(start),
	)
	return out, nil
}

func encodeMultipart(boundary string, commands []map[string]any, blobs [][]byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(boundary); err != nil {
		return nil, "", fmt.Errorf("set boundary: %w", err)
	}

	query, err := json.Marshal(commands)
	if err != nil {
		return nil, "", fmt.Errorf("encode query: %w", err)
	}
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="query"`},
		"Content-Type":        {"application/json"},
	})
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(query); err != nil {
		return nil, "", err
	}

	for i, blob := range blobs {
		part, err := w.CreatePart(textproto.MIMEHeader{
			"Content-Disposition": {fmt.Sprintf(`form-data; name="blobs"; filename="blob%d.bin"`, i)},
			"Content-Type":        {"application/octet-stream"},
		})
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(blob); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

type wireResponse struct {
	JSON   []map[string]any `json:"json"`
	Blobs  []string         `json:"blobs"`
	Status int              `json:"status"`
}

func decodeResponse(data []byte) (*Response, error) {
	var wire wireResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode proxy response: %w", err)
	}
	out := &Response{Status: wire.Status, JSON: wire.JSON}
	for i, s := range wire.Blobs {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("decode blob %d: %w", i, err)
		}
		out.Blobs = append(out.Blobs, b)
	}
	return out, nil
}
