package tier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	cacheerrors "github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/logging"
	"github.com/tiercache/tiercache/pkg/retry"
	"github.com/tiercache/tiercache/pkg/types"
)

// EdgeConfig configures the edge HTTP cache tier.
type EdgeConfig struct {
	// Endpoint is the base URL of the edge cache API.
	Endpoint string `yaml:"endpoint"`

	// Token is an optional bearer token sent with every request.
	Token string `yaml:"token"`

	// Namespace scopes keys within the edge service.
	Namespace string `yaml:"namespace"`

	// Timeout bounds each HTTP request.
	Timeout time.Duration `yaml:"timeout"`
}

// ttlHeader carries the entry TTL, in whole seconds, on writes. Edge
// services only honor second-granularity expiry.
const ttlHeader = "X-Cache-TTL"

// Edge is the geographically distributed HTTP cache tier. It speaks a
// small REST surface: GET/PUT/DELETE per entry plus a namespace purge.
type Edge struct {
	endpoint  string
	token     string
	namespace string
	client    *http.Client
	retryer   *retry.Retryer
	logger    zerolog.Logger
}

// NewEdge creates the edge tier.
func NewEdge(cfg EdgeConfig) (*Edge, error) {
	if cfg.Endpoint == "" {
		return nil, cacheerrors.New(cacheerrors.ErrCodeMissingConfig, "edge tier requires an endpoint")
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, cacheerrors.Wrap(cacheerrors.ErrCodeInvalidConfig, "invalid edge endpoint", err)
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "tiercache"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Edge{
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		token:     cfg.Token,
		namespace: cfg.Namespace,
		client:    &http.Client{Timeout: cfg.Timeout},
		retryer:   retry.New(retry.DefaultConfig()).WithMaxAttempts(2),
		logger:    logging.NewLogger("tier-edge"),
	}, nil
}

// Name implements types.Tier.
func (e *Edge) Name() string {
	return "edge"
}

func (e *Edge) entryURL(key string) string {
	return fmt.Sprintf("%s/namespaces/%s/entries/%s",
		e.endpoint, url.PathEscape(e.namespace), url.PathEscape(key))
}

func (e *Edge) do(req *http.Request) (*http.Response, error) {
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	return e.client.Do(req)
}

// Get implements types.Tier.
func (e *Edge) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte

	err := e.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.entryURL(key), nil)
		if err != nil {
			return cacheerrors.Wrap(cacheerrors.ErrCodeInternalError, "build edge request", err).WithRetryable(false)
		}

		resp, err := e.do(req)
		if err != nil {
			return cacheerrors.NewTierUnavailable(e.Name(), "get", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return cacheerrors.NewTierUnavailable(e.Name(), "get", err)
			}
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return types.ErrNotFound
		case resp.StatusCode >= 500:
			return cacheerrors.NewTierUnavailable(e.Name(), "get",
				fmt.Errorf("edge returned %d", resp.StatusCode))
		default:
			return cacheerrors.Newf(cacheerrors.ErrCodeInvalidState,
				"edge returned unexpected status %d", resp.StatusCode).
				WithTier(e.Name()).WithOperation("get")
		}
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Set implements types.Tier. The TTL is rounded up to whole seconds; a
// sub-second TTL still expires, just later than at the faster tiers.
func (e *Edge) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return e.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, e.entryURL(key), bytes.NewReader(data))
		if err != nil {
			return cacheerrors.Wrap(cacheerrors.ErrCodeInternalError, "build edge request", err).WithRetryable(false)
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		if ttl > 0 {
			secs := int64((ttl + time.Second - 1) / time.Second)
			req.Header.Set(ttlHeader, fmt.Sprintf("%d", secs))
		}

		resp, err := e.do(req)
		if err != nil {
			return cacheerrors.NewTierUnavailable(e.Name(), "set", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500:
			return cacheerrors.NewTierUnavailable(e.Name(), "set",
				fmt.Errorf("edge returned %d", resp.StatusCode))
		default:
			return cacheerrors.Newf(cacheerrors.ErrCodeInvalidState,
				"edge returned unexpected status %d", resp.StatusCode).
				WithTier(e.Name()).WithOperation("set")
		}
	})
}

// Delete implements types.Tier. A 404 from the edge is treated as success.
func (e *Edge) Delete(ctx context.Context, key string) error {
	return e.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, e.entryURL(key), nil)
		if err != nil {
			return cacheerrors.Wrap(cacheerrors.ErrCodeInternalError, "build edge request", err).WithRetryable(false)
		}

		resp, err := e.do(req)
		if err != nil {
			return cacheerrors.NewTierUnavailable(e.Name(), "delete", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return nil
		case resp.StatusCode >= 500:
			return cacheerrors.NewTierUnavailable(e.Name(), "delete",
				fmt.Errorf("edge returned %d", resp.StatusCode))
		default:
			return cacheerrors.Newf(cacheerrors.ErrCodeInvalidState,
				"edge returned unexpected status %d", resp.StatusCode).
				WithTier(e.Name()).WithOperation("delete")
		}
	})
}

// Clear implements types.Tier via the edge service's namespace purge.
func (e *Edge) Clear(ctx context.Context) error {
	return e.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		purgeURL := fmt.Sprintf("%s/namespaces/%s/purge", e.endpoint, url.PathEscape(e.namespace))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, purgeURL, nil)
		if err != nil {
			return cacheerrors.Wrap(cacheerrors.ErrCodeInternalError, "build edge request", err).WithRetryable(false)
		}

		resp, err := e.do(req)
		if err != nil {
			return cacheerrors.NewTierUnavailable(e.Name(), "clear", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		return cacheerrors.NewTierUnavailable(e.Name(), "clear",
			fmt.Errorf("edge returned %d", resp.StatusCode))
	})
}

// Close implements types.Tier.
func (e *Edge) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
