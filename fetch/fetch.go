package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrUnknownProtocol is returned for URIs that are neither local paths
	// nor HTTP(S) locations.
	ErrUnknownProtocol = errors.New("unknown protocol")

	// ErrNotImage is returned when fetched bytes are not a recognized
	// image format.
	ErrNotImage = errors.New("file is not an image")
)

// Protocol classifies a URI by how its bytes are reached.
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolFile
	ProtocolHTTP
	ProtocolObjectStore
)

// InferProtocol discovers the protocol a URI pertains to.
func InferProtocol(uri string) Protocol {
	if u, err := url.Parse(uri); err == nil {
		switch {
		case strings.HasPrefix(u.Scheme, "http"):
			return ProtocolHTTP
		case u.Scheme == "s3":
			return ProtocolObjectStore
		}
	}
	if strings.HasPrefix(uri, "file://") {
		return ProtocolFile
	}
	if _, err := os.Stat(uri); err == nil {
		return ProtocolFile
	}
	return ProtocolUnknown
}

// Metadata describes the original location of a fetched file, in the shape
// persisted next to every stored image.
type Metadata struct {
	OriginalFileName   string `json:"original_file_name"`
	OriginalPath       string `json:"original_path"`
	OriginalFileSize   string `json:"original_file_size"`
	OriginalAccessTime string `json:"original_access_time"`
}

// Fetcher loads bytes and metadata for a URI.
type Fetcher interface {
	Get(ctx context.Context, uri string) ([]byte, error)
	Metadata(ctx context.Context, uri string) (Metadata, error)
}

// Options contains configuration options for the default client.
type Options struct {
	// HTTPClient performs remote fetches. Timeouts belong here, not to
	// the callers.
	HTTPClient *http.Client

	// RateLimit bounds outgoing HTTP requests per second. Zero disables
	// limiting.
	RateLimit rate.Limit

	// RateBurst is the limiter burst size when RateLimit is set.
	RateBurst int
}

// DefaultOptions contains the default configuration options for the client.
var DefaultOptions = Options{
	HTTPClient: &http.Client{Timeout: 30 * time.Second},
	RateBurst:  1,
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) func(o *Options) {
	return func(o *Options) {
		o.HTTPClient = c
	}
}

// WithRateLimit bounds outgoing HTTP requests per second.
func WithRateLimit(limit rate.Limit, burst int) func(o *Options) {
	return func(o *Options) {
		o.RateLimit = limit
		o.RateBurst = burst
	}
}

// Client is the default Fetcher over local files and HTTP(S).
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ Fetcher = (*Client)(nil)

// NewClient creates a new default client.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	c := &Client{httpClient: opts.HTTPClient}
	if c.httpClient == nil {
		c.httpClient = DefaultOptions.HTTPClient
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(opts.RateLimit, burst)
	}
	return c
}

// Get loads the bytes behind uri.
func (c *Client) Get(ctx context.Context, uri string) ([]byte, error) {
	switch InferProtocol(uri) {
	case ProtocolFile:
		return os.ReadFile(localPath(uri))
	case ProtocolHTTP:
		return c.getHTTP(ctx, uri)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProtocol, uri)
	}
}

func (c *Client) getHTTP(ctx context.Context, uri string) ([]byte, error) {
	resp, err := c.doHTTP(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func (c *Client) doHTTP(ctx context.Context, uri string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching %s: unexpected status %s", uri, resp.Status)
	}
	return resp, nil
}

// Metadata returns the original file name, path, size and access time for
// uri. HTTP sizes come from Content-Length with a body-length fallback,
// HTTP access times from the Date header.
func (c *Client) Metadata(ctx context.Context, uri string) (Metadata, error) {
	switch InferProtocol(uri) {
	case ProtocolFile:
		return localMetadata(localPath(uri))
	case ProtocolHTTP:
		return c.httpMetadata(ctx, uri)
	default:
		return Metadata{}, fmt.Errorf("%w: %s", ErrUnknownProtocol, uri)
	}
}

func localMetadata(p string) (Metadata, error) {
	info, err := os.Stat(p)
	if err != nil {
		return Metadata{}, err
	}

	dir, name := filepath.Split(p)
	return Metadata{
		OriginalFileName:   name,
		OriginalPath:       filepath.Clean(dir),
		OriginalFileSize:   kibibytes(info.Size()),
		OriginalAccessTime: accessTime(info).UTC().Format("2006-01-02T15:04:05"),
	}, nil
}

func (c *Client) httpMetadata(ctx context.Context, uri string) (Metadata, error) {
	resp, err := c.doHTTP(ctx, uri)
	if err != nil {
		return Metadata{}, err
	}
	defer resp.Body.Close()

	size := resp.ContentLength
	if size < 0 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return Metadata{}, err
		}
		size = int64(len(body))
	}

	accessed := resp.Header.Get("Date")
	if accessed == "" {
		accessed = time.Now().UTC().Format("2006-01-02T15:04:05")
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return Metadata{}, err
	}
	dir, name := path.Split(parsed.Scheme + "://" + parsed.Host + parsed.Path)

	return Metadata{
		OriginalFileName:   name,
		OriginalPath:       strings.TrimSuffix(dir, "/"),
		OriginalFileSize:   kibibytes(size),
		OriginalAccessTime: accessed,
	}, nil
}

// accessTime returns the file modification time, the closest portable
// stand-in for the access timestamp.
func accessTime(info os.FileInfo) time.Time {
	return info.ModTime()
}

// kibibytes renders a byte size as whole kibibytes, e.g. "12K".
func kibibytes(size int64) string {
	return strconv.FormatInt(size/1024, 10) + "K"
}

func localPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}
