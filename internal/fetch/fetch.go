// Package fetch downloads GRIB files from user-supplied URLs with SSRF
// protection, a size cap, and a request timeout.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"time"
)

// ErrTooLarge reports a download that exceeded the configured size cap.
var ErrTooLarge = errors.New("download exceeds size limit")

// UpstreamError reports a non-200 response from the remote server.
type UpstreamError struct {
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Status)
}

// URLValidator checks a URL before any request is made. Both the initial URL
// and every redirect hop go through it.
type URLValidator func(rawURL string) error

// Downloader fetches remote GRIB files.
type Downloader struct {
	client   *http.Client
	validate URLValidator
	maxBytes int64
	logger   *slog.Logger
}

// NewDownloader builds a Downloader. The validator runs on the initial URL
// and again inside CheckRedirect, so a safe-looking URL cannot bounce the
// request to a private address.
func NewDownloader(validate URLValidator, timeout time.Duration, maxBytes int64, logger *slog.Logger) *Downloader {
	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("too many redirects")
			}
			return validate(req.URL.String())
		},
	}
	return &Downloader{
		client:   client,
		validate: validate,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Result is an open download stream. The caller owns Body.
type Result struct {
	Body     io.ReadCloser
	Filename string
}

// Fetch validates rawURL and opens a capped download stream. The returned
// filename comes from the final URL path after redirects and may be empty.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	if err := d.validate(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &UpstreamError{Status: resp.StatusCode}
	}
	if resp.ContentLength > d.maxBytes {
		resp.Body.Close()
		return nil, ErrTooLarge
	}

	d.logger.Info("downloading grib file",
		"url", rawURL,
		"content_length", resp.ContentLength,
	)

	filename := path.Base(resp.Request.URL.Path)
	if filename == "/" || filename == "." {
		filename = ""
	}

	return &Result{
		Body:     &cappedReadCloser{rc: resp.Body, remaining: d.maxBytes},
		Filename: filename,
	}, nil
}

// cappedReadCloser fails with ErrTooLarge once more than the cap has been
// read, covering servers that omit or lie about Content-Length.
type cappedReadCloser struct {
	rc        io.ReadCloser
	remaining int64
}

func (c *cappedReadCloser) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.rc.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return n, ErrTooLarge
	}
	return n, err
}

func (c *cappedReadCloser) Close() error {
	return c.rc.Close()
}
