package probe

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"sitewatch/internal/domain"
)

// maxHTMLBytes bounds how much of a page FetchHTML will read for metadata
// extraction.
const maxHTMLBytes = 512 << 10

type HTTPChecker struct {
	Client *http.Client
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPChecker{
		Client: &http.Client{Timeout: timeout},
	}
}

// Check probes url with a HEAD request, falling back to GET when the
// server rejects HEAD outright. 2xx/3xx counts as online.
func (c *HTTPChecker) Check(ctx context.Context, target string) Outcome {
	start := time.Now()
	resp, err := c.do(ctx, http.MethodHead, target)
	if err == nil && resp.StatusCode == http.StatusMethodNotAllowed {
		resp.Body.Close()
		resp, err = c.do(ctx, http.MethodGet, target)
	}
	lat := float64(time.Since(start).Milliseconds())

	if err != nil {
		return Outcome{
			Status:       domain.StatusOffline,
			ResponseTime: &lat,
			Reason:       classifyFailure(hostOf(target), err),
		}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	out := Outcome{ResponseTime: &lat}
	code := resp.StatusCode
	out.StatusCode = &code
	if code >= 200 && code < 400 {
		out.Status = domain.StatusOnline
	} else {
		out.Status = domain.StatusOffline
		out.Reason = resp.Status
	}

	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			out.LastModified = &t
		}
	}
	out.SSL = sslSummary(resp)
	return out
}

// FetchHTML retrieves up to maxHTMLBytes of the page body for metadata
// extraction. Failures are not probe failures — callers just skip the
// metadata refresh.
func (c *HTTPChecker) FetchHTML(ctx context.Context, target string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, target)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxHTMLBytes))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *HTTPChecker) do(ctx context.Context, method, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "sitewatch/1.0 (+https://example.invalid/sitewatch)")
	return c.Client.Do(req)
}

// sslSummary reads the certificate the transport actually negotiated.
func sslSummary(resp *http.Response) *domain.SSLInfo {
	if resp.TLS == nil || len(resp.TLS.PeerCertificates) == 0 {
		return nil
	}
	cert := resp.TLS.PeerCertificates[0]
	days := int(time.Until(cert.NotAfter).Hours() / 24)
	return &domain.SSLInfo{
		Valid:         days > 0,
		Expiry:        cert.NotAfter,
		DaysRemaining: days,
	}
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
