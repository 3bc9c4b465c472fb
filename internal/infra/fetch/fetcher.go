package fetch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/valyala/fasthttp"

	"docconvert/internal/infra/logging"
)

var (
	// ErrUnsupportedURL is returned for anything but absolute http(s) URLs.
	ErrUnsupportedURL = errors.New("unsupported url")
	// ErrBodyTooLarge is returned when the response exceeds MaxBytes.
	ErrBodyTooLarge = errors.New("response body too large")
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned status %d", e.URL, e.Code)
}

const (
	userAgent    = "docconvert/1 (+asset-fetcher)"
	maxRedirects = 5
)

// Fetcher retrieves remote resources with a bounded timeout.
type Fetcher struct {
	Timeout  time.Duration
	MaxBytes int

	client *fasthttp.Client
}

// New returns a Fetcher with the given bounds. Bodies over maxBytes are
// rejected while they are read.
func New(timeout time.Duration, maxBytes int) *Fetcher {
	return &Fetcher{
		Timeout:  timeout,
		MaxBytes: maxBytes,
		client: &fasthttp.Client{
			Name:                userAgent,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxResponseBodySize: maxBytes,
		},
	}
}

// Fetch downloads rawURL, following up to five redirects. The whole exchange
// is bounded by the smaller of f.Timeout and the time left on ctx.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.ParseRequestURI(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var deadline time.Time
	if f.Timeout > 0 {
		deadline = time.Now().Add(f.Timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if !deadline.IsZero() && !time.Now().Before(deadline) {
		return nil, context.DeadlineExceeded
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rawURL)
	req.Header.SetMethod(fasthttp.MethodGet)

	for redirects := 0; ; redirects++ {
		if err := f.do(req, resp, deadline); err != nil {
			if errors.Is(err, fasthttp.ErrBodyTooLarge) {
				return nil, fmt.Errorf("%w: over %d bytes from %s", ErrBodyTooLarge, f.MaxBytes, rawURL)
			}
			return nil, fmt.Errorf("GET %s: %w", rawURL, err)
		}
		code := resp.StatusCode()
		if !fasthttp.StatusCodeIsRedirect(code) {
			break
		}
		location := resp.Header.Peek(fasthttp.HeaderLocation)
		if len(location) == 0 {
			return nil, &StatusError{URL: rawURL, Code: code}
		}
		if redirects == maxRedirects {
			return nil, fmt.Errorf("GET %s: %w", rawURL, fasthttp.ErrTooManyRedirects)
		}
		req.URI().UpdateBytes(location)
		resp.Reset()
	}

	if code := resp.StatusCode(); code < fasthttp.StatusOK || code >= fasthttp.StatusMultipleChoices {
		return nil, &StatusError{URL: rawURL, Code: code}
	}
	body := resp.Body()
	if f.MaxBytes > 0 && len(body) > f.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes from %s", ErrBodyTooLarge, len(body), rawURL)
	}
	return append([]byte(nil), body...), nil
}

func (f *Fetcher) do(req *fasthttp.Request, resp *fasthttp.Response, deadline time.Time) error {
	if deadline.IsZero() {
		return f.client.Do(req, resp)
	}
	return f.client.DoDeadline(req, resp, deadline)
}

// FetchOptional is the best-effort variant used for cosmetic assets: any
// failure is logged and yields nil.
func (f *Fetcher) FetchOptional(ctx context.Context, rawURL string) []byte {
	if rawURL == "" {
		return nil
	}
	body, err := f.Fetch(ctx, rawURL)
	if err != nil {
		logging.Warn("Asset fetch failed, continuing without it", "url", rawURL, "error", err)
		return nil
	}
	return body
}

// DataURI encodes b as a data: URI with a sniffed media type.
func DataURI(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	mtype, _, _ := strings.Cut(mimetype.Detect(b).String(), ";")
	return "data:" + mtype + ";base64," + base64.StdEncoding.EncodeToString(b)
}
