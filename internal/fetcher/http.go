package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/andybalholm/brotli"
)

// Config controls the HTTP fetcher, matching the subset of spec.md §6's
// enumerated configuration inputs this component consumes.
type Config struct {
	ProxyHost       string
	ProxyPort       string
	RequestTimeout  time.Duration
	MaxBodySize     int64
	MaxRedirects    int
	FollowRedirects bool
	UserAgent       string
}

// HTTPFetcher implements Fetcher using net/http, adapted from the
// teacher's internal/fetcher.HTTPFetcher: same transport tuning, redirect
// capture and content decoding, with proxy rotation and stealth headers
// dropped since the ingester only needs a single validation probe.
type HTTPFetcher struct {
	client *http.Client
	cfg    Config
	logger *slog.Logger
}

// New builds an HTTPFetcher. A non-empty cfg.ProxyHost routes all
// requests through that single proxy (spec.md's HTTP_PROXY_HOST/PORT);
// there is no rotation pool, unlike the teacher's multi-proxy manager.
func New(cfg Config, logger *slog.Logger) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true, // decompression handled explicitly, including brotli
	}

	if cfg.ProxyHost != "" {
		proxyURL, err := url.Parse(fmt.Sprintf("http://%s:%s", cfg.ProxyHost, cfg.ProxyPort))
		if err != nil {
			return nil, fmt.Errorf("invalid proxy host/port: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}
	redirectPolicy := func(req *http.Request, via []*http.Request) error {
		if !cfg.FollowRedirects {
			return http.ErrUseLastResponse
		}
		if len(via) >= maxRedirects {
			return fmt.Errorf("max redirects (%d) reached", maxRedirects)
		}
		return nil
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPFetcher{
		client: &http.Client{
			Transport:     transport,
			Jar:           jar,
			Timeout:       timeout,
			CheckRedirect: redirectPolicy,
		},
		cfg:    cfg,
		logger: logger.With("component", "fetcher"),
	}, nil
}

// Fetch issues a GET for url and returns its normalized status/body/
// effective URL. A transport-level error (DNS, connection refused,
// timeout) is reported as an error; the ingester maps that to
// RejectReason = fetch_error.
func (f *HTTPFetcher) Fetch(ctx context.Context, target string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	ua := f.cfg.UserAgent
	if ua == "" {
		ua = "dispatchd/1.0"
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	maxBody := f.cfg.MaxBodySize
	if maxBody <= 0 {
		maxBody = 10 * 1024 * 1024
	}
	reader = io.LimitReader(reader, maxBody)

	reader, err = decompressReader(resp, reader)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", target, err)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", target, err)
	}

	effectiveURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		effectiveURL = resp.Request.URL.String()
	}

	f.logger.Debug("fetch probe complete", "url", target, "status", resp.StatusCode, "effective_url", effectiveURL)

	return &Result{
		StatusCode:   resp.StatusCode,
		Body:         body,
		EffectiveURL: effectiveURL,
	}, nil
}

func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}
