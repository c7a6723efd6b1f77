package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/time/rate"

	"github.com/sells-group/taxid-cli/internal/model"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent: "test-agent",
		Timeout:   5 * time.Second,
	})
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	body, err := f.Download(context.Background(), srv.URL+"/data")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestDownload_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Download(context.Background(), srv.URL+"/forbidden")
	require.Error(t, err)

	var ne *NetworkError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, http.StatusForbidden, ne.StatusCode)
	assert.Contains(t, err.Error(), "unexpected status 403")
}

func TestDownload_NoRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDownload_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Download(ctx, srv.URL)
	var ne *NetworkError
	require.True(t, errors.As(err, &ne))
	assert.Zero(t, ne.StatusCode)
}

func TestDownload_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte("late"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{Timeout: 50 * time.Millisecond})
	_, err := f.Download(context.Background(), srv.URL)
	var ne *NetworkError
	assert.True(t, errors.As(err, &ne))
}

func TestFetch_InsecureTLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("統一編號,單位名稱\n03730043,臺北市政府\n"))
	}))
	defer srv.Close()

	src := model.RawSource{URL: srv.URL, Label: "地方政府機關"}

	f := NewHTTPFetcher(HTTPOptions{Timeout: 5 * time.Second, InsecureTLS: true})
	text, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.Contains(t, text, "臺北市政府")

	strict := NewHTTPFetcher(HTTPOptions{Timeout: 5 * time.Second})
	_, err = strict.Fetch(context.Background(), src)
	var ne *NetworkError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, "地方政府機關", ne.Label)
}

func TestFetch_CP950Body(t *testing.T) {
	want := "統一編號,機關名稱\n03730043,臺北市政府\n"
	raw, err := traditionalchinese.Big5.NewEncoder().Bytes([]byte(want))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(raw)
	}))
	defer srv.Close()

	f := newTestFetcher()
	text, err := f.Fetch(context.Background(), model.RawSource{URL: srv.URL, Label: "行政院所屬機關"})
	require.NoError(t, err)
	assert.Equal(t, want, text)
}

func TestFetch_LabelOnStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Fetch(context.Background(), model.RawSource{URL: srv.URL, Label: "非營利事業"})
	var ne *NetworkError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, "非營利事業", ne.Label)
	assert.Equal(t, http.StatusNotFound, ne.StatusCode)
	assert.Contains(t, err.Error(), "非營利事業")
}

func TestRateLimiting(t *testing.T) {
	var reqTimes []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqTimes = append(reqTimes, time.Now())
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	// Create a very restrictive rate limiter: 2 req/s
	limiters := map[string]*rate.Limiter{
		srv.Listener.Addr().String(): rate.NewLimiter(2, 1),
	}

	f := NewHTTPFetcher(HTTPOptions{
		UserAgent:    "test-agent",
		Timeout:      5 * time.Second,
		RateLimiters: limiters,
	})

	ctx := context.Background()
	for range 3 {
		body, err := f.Download(ctx, srv.URL+"/limited")
		require.NoError(t, err)
		body.Close()
	}

	// With 2 req/s and burst=1, 3 requests should take at least ~1s
	require.GreaterOrEqual(t, len(reqTimes), 3)
	duration := reqTimes[len(reqTimes)-1].Sub(reqTimes[0])
	assert.GreaterOrEqual(t, duration.Milliseconds(), int64(500), "requests should be rate limited")
}

func TestLimiterFor(t *testing.T) {
	f := newTestFetcher()
	assert.Nil(t, f.limiterFor("https://unknown-host.test/path"))

	limited := NewHTTPFetcher(HTTPOptions{RatePerSec: 4})
	lim := limited.limiterFor("https://eip.fia.gov.tw/data/BGMOPEN99.csv")
	require.NotNil(t, lim)
	assert.InDelta(t, 4.0, float64(lim.Limit()), 0.001)
	// Same host shares the limiter.
	assert.Same(t, lim, limited.limiterFor("https://eip.fia.gov.tw/data/BGMOPEN99X.csv"))
}

func TestNewHTTPFetcher_Defaults(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{})
	assert.Equal(t, "taxid-cli/1.0", f.opts.UserAgent)
	assert.Equal(t, 60*time.Second, f.opts.Timeout)
	assert.Equal(t, int64(256<<20), f.opts.MaxBodyBytes)
}
