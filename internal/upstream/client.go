// Package upstream provides the HTTP fetch capability used by the resolution
// and acquisition layers: small-document fetches and large streamed downloads,
// both with bounded retry against an unreliable distribution network.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/crc-mirror/crc-mirror/internal/config"
)

// Fetcher is the transfer capability consumed by the pipeline. Implementations
// must fully succeed or fail per call; partial results are never returned.
type Fetcher interface {
	// Get fetches a small document (listing, pin file, release index).
	Get(ctx context.Context, url string) ([]byte, error)

	// Download streams a payload to a destination opened fresh for each
	// attempt, so a failed attempt is discarded rather than resumed.
	Download(ctx context.Context, url string, open func() (io.WriteCloser, error)) (int64, error)
}

// Shared HTTP transport tunings; reuses connections and centralizes timeouts.
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// Client implements Fetcher over net/http.
type Client struct {
	// docs has an overall timeout suitable for small documents
	docs *http.Client

	// payloads has no overall timeout; multi-GB transfers are bounded by
	// transport-level timeouts and the caller's context instead
	payloads *http.Client

	retries int
	delay   time.Duration
	log     *logrus.Logger
}

// NewClient builds a Client from configuration.
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	transport := defaultTransport.Clone()

	return &Client{
		docs: &http.Client{
			Timeout:   cfg.HTTPTimeout,
			Transport: transport,
		},
		payloads: &http.Client{
			Transport: transport,
		},
		retries: cfg.MaxRetries,
		delay:   cfg.RetryDelay,
		log:     log,
	}
}

func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	err := c.withRetry(ctx, url, true, func() (int, error) {
		status, data, err := c.fetch(ctx, c.docs, url, func(r io.Reader) ([]byte, error) {
			return io.ReadAll(r)
		})
		body = data
		return status, err
	})
	if err != nil {
		return nil, err
	}

	return body, nil
}

func (c *Client) Download(ctx context.Context, url string, open func() (io.WriteCloser, error)) (int64, error) {
	var written int64

	err := c.withRetry(ctx, url, false, func() (int, error) {
		dst, err := open()
		if err != nil {
			return 0, err
		}

		status, n, err := c.stream(ctx, url, dst)
		written = n
		return status, err
	})
	if err != nil {
		return 0, err
	}

	return written, nil
}

// withRetry runs fn up to the configured attempt count. Document fetches back
// off by doubling the delay between attempts; payload downloads keep a fixed
// inter-attempt delay. Non-transient HTTP statuses fail fast.
func (c *Client) withRetry(ctx context.Context, url string, backoff bool, fn func() (int, error)) error {
	var lastStatus int
	var lastErr error
	attempts := 0
	delay := c.delay

	for attempt := 1; attempt <= c.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return &TransferError{URL: url, Status: lastStatus, Attempts: attempts, Err: err}
		}

		status, err := fn()
		if err == nil {
			return nil
		}

		attempts = attempt
		lastStatus, lastErr = status, err

		if !retryable(status) {
			break
		}

		c.log.WithFields(logrus.Fields{
			"url":     url,
			"attempt": attempt,
			"status":  status,
		}).Warnf("transfer attempt failed: %v", err)

		if attempt < c.retries {
			select {
			case <-time.After(delay):
				if backoff {
					delay *= 2
				}
			case <-ctx.Done():
				return &TransferError{URL: url, Status: status, Attempts: attempt, Err: ctx.Err()}
			}
		}
	}

	return &TransferError{URL: url, Status: lastStatus, Attempts: attempts, Err: lastErr}
}

// retryable reports whether a failed attempt is worth repeating. Network
// errors (status 0) and server-side failures are transient; client errors
// like 404 will not change within the retry window.
func retryable(status int) bool {
	if status == 0 {
		return true
	}

	return status >= 500 || status == http.StatusTooManyRequests
}

func (c *Client) fetch(ctx context.Context, client *http.Client, url string, read func(io.Reader) ([]byte, error)) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	data, err := read(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}

	return resp.StatusCode, data, nil
}

func (c *Client) stream(ctx context.Context, url string, dst io.WriteCloser) (int, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		dst.Close()
		return 0, 0, err
	}

	resp, err := c.payloads.Do(req)
	if err != nil {
		dst.Close()
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		dst.Close()
		return resp.StatusCode, 0, fmt.Errorf("unexpected status %s", resp.Status)
	}

	written, copyErr := io.Copy(dst, resp.Body)

	closeErr := dst.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		return resp.StatusCode, written, copyErr
	}

	return resp.StatusCode, written, nil
}
