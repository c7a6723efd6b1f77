package fetcher

import (
	"context"
	"io"

	"github.com/sells-group/taxid-cli/internal/model"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// Fetch downloads a source feed and returns its body decoded to UTF-8 text.
	Fetch(ctx context.Context, src model.RawSource) (string, error)
}

// NetworkError reports an unreachable or failing endpoint. Callers treat it as
// non-fatal: the source is skipped or the lookup falls back.
type NetworkError struct {
	Label      string // source label, empty for non-feed requests
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *NetworkError) Error() string {
	prefix := "fetch " + e.URL
	if e.Label != "" {
		prefix = "fetch " + e.Label + " (" + e.URL + ")"
	}
	return prefix + ": " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
