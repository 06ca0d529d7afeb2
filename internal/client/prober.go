package client

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"resty.dev/v3"

	"xiapu/imageguard/internal/proxy"
)

var (
	ErrProbeTimeout = errors.New("probe timed out")
	ErrProbeNetwork = errors.New("probe failed")
	ErrBrokenImage  = errors.New("image is broken")
)

// Result describes a successful probe.
type Result struct {
	URL         string
	ContentType string
	Width       int
	Height      int
	Elapsed     time.Duration
}

// Prober performs one bounded attempt to load an image URL.
type Prober interface {
	Probe(ctx context.Context, rawURL string) (Result, error)
}

type Options struct {
	SiteURL              string
	Timeout              time.Duration
	MaxRequestsPerSecond int
	UserAgent            string
	// Optional. The prober moves to the next proxy after a transport error.
	Proxies proxy.Supplier
}

type httpProber struct {
	rl         ratelimit.Limiter
	httpClient *resty.Client
	siteURL    *url.URL
	timeout    time.Duration
	proxies    proxy.Supplier
}

func NewProber(opts Options) (Prober, error) {
	var site *url.URL
	if opts.SiteURL != "" {
		u, err := url.Parse(opts.SiteURL)
		if err != nil {
			return nil, fmt.Errorf("invalid site url %q: %w", opts.SiteURL, err)
		}
		site = u
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "imageguard/1.0"
	}

	// Retries belong to the pipeline, not the transport.
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept", "image/avif,image/webp,image/png,image/jpeg,image/*;q=0.8,*/*;q=0.5")

	rl := ratelimit.NewUnlimited()
	if opts.MaxRequestsPerSecond > 0 {
		rl = ratelimit.New(opts.MaxRequestsPerSecond)
	}

	if opts.Proxies != nil {
		if proxyURL := opts.Proxies.Get(); proxyURL != "" {
			client.SetProxy(proxyURL)
			log.Infof("🔗 Using initial proxy: %s", proxyURL)
		}
	}

	return &httpProber{
		rl:         rl,
		httpClient: client,
		siteURL:    site,
		timeout:    opts.Timeout,
		proxies:    opts.Proxies,
	}, nil
}

func (p *httpProber) Probe(ctx context.Context, rawURL string) (Result, error) {
	target, err := p.resolve(rawURL)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrProbeNetwork, err)
	}

	p.rl.Take()

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.httpClient.R().
		SetContext(reqCtx).
		Get(target)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("%w after %v: %s", ErrProbeTimeout, p.timeout, target)
		}
		p.switchProxy()
		return Result{}, fmt.Errorf("%w: %s: %v", ErrProbeNetwork, target, err)
	}

	if resp.IsError() {
		return Result{}, fmt.Errorf("%w: %s: HTTP %d", ErrProbeNetwork, target, resp.StatusCode())
	}

	result := Result{
		URL:         target,
		ContentType: resp.Header().Get("Content-Type"),
		Elapsed:     elapsed,
	}

	cfg, _, err := image.DecodeConfig(strings.NewReader(resp.String()))
	switch {
	case err == nil:
		if cfg.Width == 0 || cfg.Height == 0 {
			return Result{}, fmt.Errorf("%w: %s has zero natural size", ErrBrokenImage, target)
		}
		result.Width = cfg.Width
		result.Height = cfg.Height
	case errors.Is(err, image.ErrFormat) && strings.HasPrefix(result.ContentType, "image/"):
		// svg, webp and friends: trust the content type.
		log.Debugf("No decoder for %s (%s), accepting by content type", target, result.ContentType)
	default:
		return Result{}, fmt.Errorf("%w: %s: %v", ErrBrokenImage, target, err)
	}

	log.Debugf("Probed %s in %v (%dx%d)", target, elapsed.Round(time.Millisecond), result.Width, result.Height)
	return result, nil
}

func (p *httpProber) switchProxy() {
	if p.proxies == nil || p.proxies.Len() < 2 {
		return
	}
	if next := p.proxies.Get(); next != "" {
		p.httpClient.SetProxy(next)
		log.Infof("🔄 Switching to proxy %s", next)
	}
}

func (p *httpProber) resolve(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return rawURL, nil
	}
	if p.siteURL == nil {
		return "", fmt.Errorf("relative url %q without site url", rawURL)
	}
	return p.siteURL.ResolveReference(u).String(), nil
}
