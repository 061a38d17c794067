// Package worker is a client for the local inference worker that hosts the
// speaker encoder, synthesizer and vocoder networks on the accelerator.
//
// The worker exposes a small HTTP API with msgpack-encoded bodies:
//
//	GET    /v1/health                   liveness
//	GET    /v1/devices                  accelerators visible to the worker
//	POST   /v1/models                   load a checkpoint, returns a handle
//	DELETE /v1/models/{handle}          unload
//	POST   /v1/encoder/embed            waveform -> speaker embedding
//	POST   /v1/synthesizer/synthesize   texts + embeddings -> spectrograms
//	POST   /v1/vocoder/infer            spectrogram -> waveform
//
// Inference calls carry no timeout; they run as long as the model needs.
// Only connection establishment is bounded.
//
// Typical usage:
//
//	c, err := worker.New("http://127.0.0.1:7860")
//	enc, err := c.LoadEncoder(ctx, "encoder/saved_models/pretrained.pt")
//	emb, err := enc.Embed(ctx, wav)
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	contentType        = "application/msgpack"
	defaultDialTimeout = 5 * time.Second

	healthEndpoint     = "/v1/health"
	devicesEndpoint    = "/v1/devices"
	modelsEndpoint     = "/v1/models"
	embedEndpoint      = "/v1/encoder/embed"
	synthesizeEndpoint = "/v1/synthesizer/synthesize"
	vocodeEndpoint     = "/v1/vocoder/infer"
)

// APIError is returned when the worker answers with a non-2xx status.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("worker: %s %s returned status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("worker: %s %s returned status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithDialTimeout bounds how long establishing a connection to the worker
// may take. Defaults to 5 s.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.dialTimeout = d
	}
}

// Client talks to one inference worker. It is safe for concurrent use.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	dialTimeout time.Duration
}

// New creates a Client for the worker at baseURL (e.g.,
// "http://127.0.0.1:7860"). baseURL must be non-empty.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("worker: baseURL must not be empty")
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		dialTimeout: defaultDialTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	if c.httpClient == nil {
		dialer := &net.Dialer{Timeout: c.dialTimeout}
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:       http.ProxyFromEnvironment,
				DialContext: dialer.DialContext,
			},
		}
	}
	return c, nil
}

// BaseURL returns the worker address the client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// Health returns nil when the worker answers its liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	var resp healthResponse
	if err := c.do(ctx, http.MethodGet, healthEndpoint, nil, &resp); err != nil {
		return err
	}
	if resp.Status != "" && resp.Status != "ok" {
		return fmt.Errorf("worker: health status %q", resp.Status)
	}
	return nil
}

// Devices lists the accelerators visible to the worker.
func (c *Client) Devices(ctx context.Context) (DeviceList, error) {
	var resp DeviceList
	if err := c.do(ctx, http.MethodGet, devicesEndpoint, nil, &resp); err != nil {
		return DeviceList{}, err
	}
	return resp, nil
}

// load asks the worker to load a checkpoint of the given kind.
func (c *Client) load(ctx context.Context, kind ModelKind, path string) (loadResponse, error) {
	var resp loadResponse
	if err := c.do(ctx, http.MethodPost, modelsEndpoint, loadRequest{Kind: kind, Path: path}, &resp); err != nil {
		return loadResponse{}, fmt.Errorf("worker: load %s %q: %w", kind, path, err)
	}
	if resp.Handle == "" {
		return loadResponse{}, fmt.Errorf("worker: load %s %q: empty model handle", kind, path)
	}
	return resp, nil
}

// unload releases the model behind handle.
func (c *Client) unload(handle string) error {
	return c.do(context.Background(), http.MethodDelete, modelsEndpoint+"/"+handle, nil, nil)
}

// do performs one request. in and out may be nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := msgpack.Marshal(in)
		if err != nil {
			return fmt.Errorf("worker: marshal %s request: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("worker: create %s request: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("worker: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Method: method, Path: path, Status: resp.StatusCode}
		var er errorResponse
		if msgpack.NewDecoder(resp.Body).Decode(&er) == nil {
			apiErr.Message = er.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := msgpack.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("worker: decode %s response: %w", path, err)
	}
	return nil
}
