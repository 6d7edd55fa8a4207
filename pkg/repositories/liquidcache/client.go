// Package liquidcache implements repositories.ServerRepository over the cache
// server's REST API.
package liquidcache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/cachewatch/pkg/errors"
	"github.com/TFMV/cachewatch/pkg/infrastructure/converter"
	"github.com/TFMV/cachewatch/pkg/models"
	"github.com/TFMV/cachewatch/pkg/repositories"
)

// DefaultAddress is the address the dashboard connects to when none is given.
const DefaultAddress = "http://localhost:53703"

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 4 * 1024

// Client talks to one cache server.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient constructs a client for address. A missing scheme defaults to
// http and a trailing slash is dropped.
func NewClient(address string, httpClient *http.Client, logger zerolog.Logger) (*Client, error) {
	normalized, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidRequest, "invalid server address")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: u,
		http:    httpClient,
		logger:  logger.With().Str("server", normalized).Logger(),
	}, nil
}

// NewFactory returns a repositories.ServerRepositoryFactory sharing one
// http.Client.
func NewFactory(httpClient *http.Client, logger zerolog.Logger) repositories.ServerRepositoryFactory {
	return func(address string) (repositories.ServerRepository, error) {
		return NewClient(address, httpClient, logger)
	}
}

// NormalizeAddress validates a server address and puts it in canonical form.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", errors.ErrNoServerAddress
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}

	u, err := url.Parse(address)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInvalidRequest, "invalid server address")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New(errors.CodeInvalidRequest, "server address must use http or https").
			WithDetail("scheme", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New(errors.CodeInvalidRequest, "server address has no host")
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// Address returns the normalised base address.
func (c *Client) Address() string {
	return c.baseURL.String()
}

func (c *Client) ExecutionPlans(ctx context.Context) ([]models.PlanRecord, error) {
	body, err := c.get(ctx, "/execution_plans", nil)
	if err != nil {
		return nil, err
	}
	return converter.ParseBatch(body)
}

func (c *Client) CacheInfo(ctx context.Context) (*models.CacheInfo, error) {
	var out models.CacheInfo
	if err := c.getJSON(ctx, "/cache_info", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ParquetCacheUsage(ctx context.Context) (*models.ParquetCacheUsage, error) {
	var out models.ParquetCacheUsage
	if err := c.getJSON(ctx, "/parquet_cache_usage", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SystemInfo(ctx context.Context) (*models.SystemInfo, error) {
	var out models.SystemInfo
	if err := c.getJSON(ctx, "/system_info", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ResetCache(ctx context.Context) (*models.APIResponse, error) {
	return c.command(ctx, "/reset_cache", nil)
}

func (c *Client) Shutdown(ctx context.Context) (*models.APIResponse, error) {
	return c.command(ctx, "/shutdown", nil)
}

func (c *Client) StartTrace(ctx context.Context) (*models.APIResponse, error) {
	return c.command(ctx, "/start_trace", nil)
}

func (c *Client) StopTrace(ctx context.Context, path string) (*models.APIResponse, error) {
	return c.command(ctx, "/stop_trace", url.Values{"path": {path}})
}

func (c *Client) CacheStats(ctx context.Context, path string) (*models.APIResponse, error) {
	return c.command(ctx, "/cache_stats", url.Values{"path": {path}})
}

func (c *Client) command(ctx context.Context, endpoint string, query url.Values) (*models.APIResponse, error) {
	var out models.APIResponse
	if err := c.getJSON(ctx, endpoint, query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values, out interface{}) error {
	body, err := c.get(ctx, endpoint, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, errors.CodeDecodeFailed, "invalid response from %s", endpoint)
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	u := c.baseURL.JoinPath(endpoint)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidRequest, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := errors.FromContext(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.Wrapf(err, errors.CodeNetworkFailure, "request to %s failed", endpoint)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Cache server responded")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := readAllLimit(resp.Body, maxErrorBody)
		msg := fmt.Sprintf("%s returned status %d", endpoint, resp.StatusCode)
		if text := strings.TrimSpace(string(excerpt)); text != "" {
			msg += ": " + text
		}
		return nil, errors.New(errors.CodeUpstreamStatus, msg).WithDetail("status", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := errors.FromContext(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.Wrapf(err, errors.CodeNetworkFailure, "reading response from %s failed", endpoint)
	}
	return body, nil
}

// readAllLimit reads at most max bytes of r.
func readAllLimit(r io.Reader, max int64) ([]byte, error) {
	buf := &bytes.Buffer{}
	_, err := io.CopyN(buf, r, max)
	if err != nil && err != io.EOF {
		return buf.Bytes(), err
	}
	return buf.Bytes(), nil
}

var _ repositories.ServerRepository = (*Client)(nil)
