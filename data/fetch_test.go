package data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
)

func TestFetcherHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("circuit,year\n"))
	}))
	defer srv.Close()

	f := NewFetcher(WithHTTPClient(srv.Client()))
	body, err := f.Fetch(context.Background(), srv.URL+"/vb_matches.csv")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "circuit,year\n" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestFetcherRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewFetcher(WithHTTPClient(srv.Client()), WithRetries(2), WithBackoff(time.Millisecond))
	body, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "ok" || atomic.LoadInt32(&calls) != 3 {
		t.Errorf("body %q after %d calls", body, calls)
	}
}

func TestFetcherClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(WithHTTPClient(srv.Client()), WithRetries(3), WithBackoff(time.Millisecond))
	_, err := f.Fetch(context.Background(), srv.URL)

	var fe *vberrors.FetchError
	if !vberrors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", fe.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("404 was requested %d times", calls)
	}
}

func TestFetcherBreakerOpens(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewFetcher(WithHTTPClient(srv.Client()), WithRetries(5), WithBackoff(time.Millisecond))
	_, err := f.Fetch(context.Background(), srv.URL)
	if !vberrors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if f.State() != gobreaker.StateOpen {
		t.Errorf("state = %v, want open", f.State())
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("server saw %d calls, breaker should trip after 3", calls)
	}
}

func TestFetcherContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFetcher(WithHTTPClient(srv.Client()), WithRetries(3), WithBackoff(time.Hour))
	_, err := f.Fetch(ctx, srv.URL)
	if !vberrors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFetcherLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vb_matches.csv")
	if err := os.WriteFile(path, []byte("local"), 0o600); err != nil {
		t.Fatal(err)
	}

	f := NewFetcher()
	for _, loc := range []string{path, "file://" + path} {
		body, err := f.Fetch(context.Background(), loc)
		if err != nil {
			t.Fatalf("Fetch(%q): %v", loc, err)
		}
		if string(body) != "local" {
			t.Errorf("Fetch(%q) = %q", loc, body)
		}
	}

	_, err := f.Fetch(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	var fe *vberrors.FetchError
	if !vberrors.As(err, &fe) {
		t.Errorf("missing file should be a FetchError, got %v", err)
	}
}

func TestFetcherUnsupportedScheme(t *testing.T) {
	_, err := NewFetcher().Fetch(context.Background(), "ftp://example.com/vb.csv")
	var fe *vberrors.FetchError
	if !vberrors.As(err, &fe) {
		t.Errorf("expected FetchError, got %v", err)
	}
}
