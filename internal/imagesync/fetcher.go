package imagesync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/shashiranjanraj/catalogsync/pkg/httpclient"
)

var (
	ErrScheme     = errors.New("unsupported url scheme")
	ErrStatus     = errors.New("unexpected status")
	ErrNotImage   = errors.New("not an image")
	ErrTooLarge   = errors.New("image too large")
	ErrURLTooLong = errors.New("url too long")
)

// Fetched is a downloaded image body.
type Fetched struct {
	URL         string
	Data        []byte
	ContentType string
}

// Fetcher downloads single images with a size cap and optional pacing.
type Fetcher struct {
	maxBytes int64
	timeout  time.Duration
	limiter  *rate.Limiter
}

// NewFetcher returns a Fetcher. rps <= 0 disables pacing.
func NewFetcher(maxBytes int64, timeout time.Duration, rps float64) *Fetcher {
	f := &Fetcher{maxBytes: maxBytes, timeout: timeout}
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return f
}

// Fetch downloads ref, a normalized image reference.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (Fetched, error) {
	target := fetchURL(ref)
	u, err := url.Parse(target)
	if err != nil {
		return Fetched{}, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Fetched{}, fmt.Errorf("%w %q", ErrScheme, u.Scheme)
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return Fetched{}, err
		}
	}

	resp, err := httpclient.Get(target).
		Header("Accept", "image/*").
		Timeout(f.timeout).
		WithContext(ctx).
		Stream()
	if err != nil {
		return Fetched{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Fetched{}, fmt.Errorf("%w %d", ErrStatus, resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || !strings.HasPrefix(mt, "image/") {
			return Fetched{}, fmt.Errorf("%w: content type %q", ErrNotImage, ct)
		}
		ct = mt
	}

	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return Fetched{}, fmt.Errorf("%w: declared %d bytes, max %d", ErrTooLarge, resp.ContentLength, f.maxBytes)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return Fetched{}, fmt.Errorf("read body: %w", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return Fetched{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}

	return Fetched{URL: ref, Data: data, ContentType: ct}, nil
}
