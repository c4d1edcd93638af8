package workbook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxBytes caps the size of a downloaded workbook.
const DefaultMaxBytes int64 = 64 << 20

var (
	// ErrUnsupportedSource is returned for locations with an unknown scheme.
	ErrUnsupportedSource = errors.New("workbook: unsupported source")
	// ErrTooLarge is returned when a workbook exceeds the configured size cap.
	ErrTooLarge = errors.New("workbook: source too large")
)

// ObjectOpener reads objects from a bucket store.
type ObjectOpener interface {
	Open(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

// GCSOpener opens Cloud Storage objects.
type GCSOpener struct {
	client *storage.Client
}

// NewGCSOpener creates a storage client using application default
// credentials.
func NewGCSOpener(ctx context.Context) (*GCSOpener, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSOpener{client: client}, nil
}

// Open returns a reader for gs://bucket/object.
func (o *GCSOpener) Open(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	r, err := o.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	return r, nil
}

// Close releases the storage client.
func (o *GCSOpener) Close() error {
	if o == nil || o.client == nil {
		return nil
	}
	return o.client.Close()
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the client used for http(s) sources.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.http = c
		}
	}
}

// WithObjectOpener enables gs:// sources.
func WithObjectOpener(o ObjectOpener) Option {
	return func(f *Fetcher) { f.objects = o }
}

// WithLogger sets the fetch logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithMaxBytes overrides DefaultMaxBytes.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// Fetcher downloads and parses workbooks, memoizing each by source location
// until reloaded or invalidated. Concurrent fetches of one source share a
// single download.
type Fetcher struct {
	http     *http.Client
	objects  ObjectOpener
	logger   *slog.Logger
	maxBytes int64

	mu    sync.RWMutex
	memo  map[string]*Workbook
	group singleflight.Group
}

// NewFetcher constructs a Fetcher for http(s), gs:// and local file sources.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		http:     &http.Client{Timeout: 60 * time.Second},
		logger:   slog.Default(),
		maxBytes: DefaultMaxBytes,
		memo:     make(map[string]*Workbook),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(slog.String("component", "workbook.fetcher"))
	return f
}

// Fetch returns the parsed workbook at source. reload discards the memoized
// copy first.
func (f *Fetcher) Fetch(ctx context.Context, source string, reload bool) (*Workbook, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("%w: empty location", ErrUnsupportedSource)
	}
	if reload {
		f.Invalidate(source)
	} else if wb, ok := f.cached(source); ok {
		return wb, nil
	}

	ch := f.group.DoChan(source, func() (interface{}, error) {
		wb, err := f.load(context.WithoutCancel(ctx), source)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.memo[source] = wb
		f.mu.Unlock()
		return wb, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Workbook), nil
	}
}

// Invalidate drops the memoized copy of source.
func (f *Fetcher) Invalidate(source string) {
	f.mu.Lock()
	delete(f.memo, strings.TrimSpace(source))
	f.mu.Unlock()
}

// Reset drops every memoized workbook.
func (f *Fetcher) Reset() {
	f.mu.Lock()
	f.memo = make(map[string]*Workbook)
	f.mu.Unlock()
}

func (f *Fetcher) cached(source string) (*Workbook, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	wb, ok := f.memo[source]
	return wb, ok
}

func (f *Fetcher) load(ctx context.Context, source string) (*Workbook, error) {
	start := time.Now()
	rc, err := f.open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("workbook: read %s: %w", source, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, source)
	}
	wb, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	f.logger.Info("workbook fetched",
		slog.String("source", source),
		slog.Int("bytes", len(data)),
		slog.Int("sheets", len(wb.Sheets)),
		slog.Duration("duration", time.Since(start)))
	return wb, nil
}

func (f *Fetcher) open(ctx context.Context, source string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("workbook: build request: %w", err)
		}
		resp, err := f.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("workbook: download %s: %w", source, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("workbook: download %s: status %d", source, resp.StatusCode)
		}
		return resp.Body, nil
	case strings.HasPrefix(source, "gs://"):
		if f.objects == nil {
			return nil, fmt.Errorf("%w: gs:// requires a storage client", ErrUnsupportedSource)
		}
		bucket, object, ok := strings.Cut(strings.TrimPrefix(source, "gs://"), "/")
		if !ok || bucket == "" || object == "" {
			return nil, fmt.Errorf("%w: invalid GCS URI %s", ErrUnsupportedSource, source)
		}
		return f.objects.Open(ctx, bucket, object)
	case strings.HasPrefix(source, "file://"):
		return openFile(strings.TrimPrefix(source, "file://"))
	case strings.Contains(source, "://"):
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, source)
	default:
		return openFile(source)
	}
}

func openFile(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("workbook: open %s: %w", path, err)
	}
	return file, nil
}
