package data

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/sony/gobreaker"

	"github.com/YuminosukeSato/vbtune/pkg/log"
	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
)

// Source returns the raw bytes stored at a location.
type Source interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Fetcher reads http(s) URLs through a circuit breaker and falls back to the
// local filesystem for file:// URLs and bare paths.
type Fetcher struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	retries int
	backoff time.Duration
	logger  log.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the HTTP client (tests pass httptest clients).
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.client.Timeout = d }
}

// WithRetries sets how many times a failed attempt is retried.
func WithRetries(n int) FetcherOption {
	return func(f *Fetcher) { f.retries = n }
}

// WithBackoff sets the base delay; attempt k waits k*d.
func WithBackoff(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.backoff = d }
}

// NewFetcher creates a Fetcher. The breaker opens after three consecutive
// failed requests and lets a single trial request through after 30s.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:  &http.Client{Timeout: 30 * time.Second},
		retries: 2,
		backoff: 500 * time.Millisecond,
		logger:  log.GetLoggerWithName("data"),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "data-fetch",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			// a cancelled caller says nothing about the remote host
			return err == nil || vberrors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return f
}

// State reports the circuit breaker state.
func (f *Fetcher) State() gobreaker.State {
	return f.breaker.State()
}

// Fetch returns the body stored at location. HTTP responses outside 2xx are
// FetchErrors carrying the status code. Network errors and 5xx responses are
// retried with linear backoff; 4xx responses and an open breaker are not.
func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, vberrors.NewFetchError(location, 0, err)
	}
	switch u.Scheme {
	case "http", "https":
	case "file":
		return readLocal(location, u.Path)
	case "":
		return readLocal(location, location)
	default:
		return nil, vberrors.NewFetchError(location, 0, vberrors.Newf("unsupported scheme %q", u.Scheme))
	}

	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * f.backoff
			f.logger.Warn("retrying fetch",
				log.SourceKey, location,
				"attempt", attempt,
				"wait_ms", wait.Milliseconds(),
				log.ErrAttrKey, lastErr,
			)
			select {
			case <-ctx.Done():
				return nil, vberrors.WithStack(ctx.Err())
			case <-time.After(wait):
			}
		}

		body, err := f.breaker.Execute(func() (interface{}, error) {
			return f.get(ctx, location)
		})
		if err == nil {
			return body.([]byte), nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, vberrors.WithStack(ctx.Err())
		}
		if vberrors.Is(err, gobreaker.ErrOpenState) || vberrors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, vberrors.NewFetchError(location, 0, err)
		}
		var fe *vberrors.FetchError
		if vberrors.As(err, &fe) && fe.StatusCode >= 400 && fe.StatusCode < 500 {
			return nil, err
		}
	}
	return nil, lastErr
}

func (f *Fetcher) get(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, vberrors.NewFetchError(location, 0, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, vberrors.NewFetchError(location, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, vberrors.NewFetchError(location, resp.StatusCode, nil)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, vberrors.NewFetchError(location, 0, err)
	}
	return body, nil
}

func readLocal(location, path string) ([]byte, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, vberrors.NewFetchError(location, 0, err)
	}
	return body, nil
}
