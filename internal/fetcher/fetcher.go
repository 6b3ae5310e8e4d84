// Package fetcher downloads source PDFs and reads report catalogs produced
// by the scraper.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/sitrep-cli/internal/resilience"
)

// ErrNotPDF is returned when a link serves something other than a PDF,
// usually an HTML error page.
var ErrNotPDF = eris.New("fetcher: response is not a PDF")

// Options configures a Downloader.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	// RatePerSecond bounds requests to the publisher.
	RatePerSecond float64
	Retry         resilience.RetryConfig
}

// Downloader fetches PDFs over HTTP with rate limiting and retries.
type Downloader struct {
	client  *http.Client
	limiter *rate.Limiter
	opts    Options
	logger  *zap.Logger
}

// NewDownloader creates a Downloader.
func NewDownloader(opts Options, logger *zap.Logger) *Downloader {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "sitrep-cli/1.0"
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 1
	}
	if logger == nil {
		logger = zap.L()
	}
	opts.Retry.Retryable = retryable
	return &Downloader{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1),
		opts:    opts,
		logger:  logger,
	}
}

type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("fetcher: http %d from %s", e.code, e.url)
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return resilience.IsTransientHTTPStatus(se.code)
	}
	return resilience.IsTransient(err)
}

func (d *Downloader) get(ctx context.Context, url string) ([]byte, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limiter wait")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", d.opts.UserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, url: url}
	}
	return io.ReadAll(resp.Body)
}

// Download fetches url into path and returns the byte count. The file only
// appears once the whole body has arrived and looks like a PDF.
func (d *Downloader) Download(ctx context.Context, url, path string) (int64, error) {
	cfg := d.opts.Retry
	cfg.OnRetry = resilience.LogRetries(d.logger, "download", zap.String("url", url))
	data, err := resilience.RetryVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		return d.get(ctx, url)
	})
	if err != nil {
		return 0, eris.Wrapf(err, "fetcher: download %s", url)
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\r\n\t "), []byte("%PDF")) {
		return 0, eris.Wrapf(ErrNotPDF, "fetcher: download %s", url)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, eris.Wrapf(err, "fetcher: create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return 0, eris.Wrapf(err, "fetcher: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return 0, eris.Wrapf(err, "fetcher: write %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, eris.Wrapf(err, "fetcher: rename %s", path)
	}
	return int64(len(data)), nil
}
