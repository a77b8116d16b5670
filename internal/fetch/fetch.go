// Package fetch retrieves raw bytes for data sources over HTTP(S), from
// file:// URLs, or relative to a configured base URL.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Fetcher is the byte-fetch collaborator.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// RangeFetcher is implemented by fetchers able to read part of a resource.
type RangeFetcher interface {
	FetchRange(ctx context.Context, url string, off, n int64) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Status)
}

// Options configures the HTTP fetcher.
type Options struct {
	// BaseURL resolves relative source paths such as "/data/a.fgb".
	BaseURL string
	// Timeout bounds a whole request, body included. Zero means 30s.
	Timeout time.Duration
	// MaxBytes caps a response body. Zero means 512 MiB.
	MaxBytes int64
	// Client overrides the outbound client.
	Client *http.Client
}

// HTTP fetches http(s) and file URLs.
type HTTP struct {
	client   *http.Client
	base     *url.URL
	maxBytes int64

	// whole holds full bodies of URLs whose server ignored a Range header,
	// so later windows are cut without another download.
	whole *lru.Cache[string, []byte]
}

// wholeBodies bounds how many full bodies FetchRange keeps.
const wholeBodies = 8

// NewOutbound creates the outbound http client.
func NewOutbound(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// NewHTTP creates an HTTP fetcher.
func NewHTTP(opts Options) (*HTTP, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 512 << 20
	}
	h := &HTTP{client: opts.Client, maxBytes: opts.MaxBytes}
	if h.client == nil {
		h.client = NewOutbound(opts.Timeout)
	}
	whole, err := lru.New[string, []byte](wholeBodies)
	if err != nil {
		return nil, err
	}
	h.whole = whole
	if opts.BaseURL != "" {
		u, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url %q: %w", opts.BaseURL, err)
		}
		h.base = u
	}
	return h, nil
}

// Resolve turns a source path into an absolute URL.
func (h *HTTP) Resolve(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.IsAbs() {
		return u, nil
	}
	if h.base == nil {
		return nil, fmt.Errorf("relative url %q without base url", raw)
	}
	return h.base.ResolveReference(u), nil
}

// Fetch implements Fetcher.
func (h *HTTP) Fetch(ctx context.Context, raw string) ([]byte, error) {
	u, err := h.Resolve(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "file" {
		return os.ReadFile(u.Path)
	}
	body, _, err := h.do(ctx, http.MethodGet, u, nil)
	return body, err
}

// FetchRange implements RangeFetcher with an HTTP Range request. Servers that
// ignore the header still work: the first full answer is kept and every
// window of that URL is cut from it.
func (h *HTTP) FetchRange(ctx context.Context, raw string, off, n int64) ([]byte, error) {
	u, err := h.Resolve(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "file" {
		return readFileRange(u.Path, off, n)
	}
	key := u.String()
	if body, ok := h.whole.Get(key); ok {
		return window(body, off, n)
	}
	hdr := http.Header{"Range": {fmt.Sprintf("bytes=%d-%d", off, off+n-1)}}
	body, status, err := h.do(ctx, http.MethodGet, u, hdr)
	if err != nil {
		return nil, err
	}
	if status != http.StatusPartialContent {
		h.whole.Add(key, body)
		return window(body, off, n)
	}
	return body, nil
}

func window(body []byte, off, n int64) ([]byte, error) {
	if off >= int64(len(body)) {
		return nil, io.EOF
	}
	end := min(off+n, int64(len(body)))
	return body[off:end], nil
}

// Validate issues a HEAD request and reports whether the resource answered
// with a 2xx status.
func (h *HTTP) Validate(ctx context.Context, raw string) bool {
	u, err := h.Resolve(raw)
	if err != nil {
		return false
	}
	if u.Scheme == "file" {
		_, err := os.Stat(u.Path)
		return err == nil
	}
	_, _, err = h.do(ctx, http.MethodHead, u, nil)
	return err == nil
}

func (h *HTTP) do(ctx context.Context, method string, u *url.URL, hdr http.Header) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, 0, err
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode, &StatusError{URL: u.String(), Code: resp.StatusCode, Status: resp.Status}
	}
	if method == http.MethodHead {
		return nil, resp.StatusCode, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read %s: %w", u, err)
	}
	if int64(len(body)) > h.maxBytes {
		return nil, resp.StatusCode, fmt.Errorf("fetch %s: body exceeds %d bytes", u, h.maxBytes)
	}
	return body, resp.StatusCode, nil
}

func readFileRange(path string, off, n int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	got, err := f.ReadAt(buf, off)
	if got > 0 && (err == nil || err == io.EOF) {
		return buf[:got], nil
	}
	return nil, err
}

// JSON fetches url and decodes it into v.
func JSON(ctx context.Context, f Fetcher, url string, v any) error {
	data, err := f.Fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// WithTimeout bounds every call of f by d. Range support of f is kept.
func WithTimeout(f Fetcher, d time.Duration) Fetcher {
	if d <= 0 {
		return f
	}
	t := &timeoutFetcher{next: f, d: d}
	if rf, ok := f.(RangeFetcher); ok {
		return &timeoutRangeFetcher{timeoutFetcher: t, ranged: rf}
	}
	return t
}

type timeoutFetcher struct {
	next Fetcher
	d    time.Duration
}

func (t *timeoutFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Fetch(ctx, url)
}

type timeoutRangeFetcher struct {
	*timeoutFetcher
	ranged RangeFetcher
}

func (t *timeoutRangeFetcher) FetchRange(ctx context.Context, url string, off, n int64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.ranged.FetchRange(ctx, url, off, n)
}
