// Package registry queries the live MOEA business registry (GCIS open data)
// for the registered name behind a unified business number.
package registry

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/sells-group/taxid-cli/internal/fetcher"
)

// DefaultBaseURL is the GCIS company-basic-information dataset endpoint.
const DefaultBaseURL = "https://data.gcis.nat.gov.tw/od/data/api/5F64D864-61CB-4D0D-8AD9-492047CC1EA6"

// DefaultTimeout bounds a single registry call.
const DefaultTimeout = 5 * time.Second

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	UserAgent  string
	RatePerSec float64
}

// Client looks up tax-ids against the registry. Each call is attempted once.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *fetcher.HTTPFetcher
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Client{
		baseURL: opts.BaseURL,
		timeout: opts.Timeout,
		http: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:    opts.UserAgent,
			Timeout:      opts.Timeout,
			RatePerSec:   rate.Limit(opts.RatePerSec),
			MaxBodyBytes: 1 << 20,
		}),
	}
}

var taxIDPattern = regexp.MustCompile(`^[0-9]{8}$`)

// ValidTaxID reports whether s has the shape of a unified business number
// (exactly eight ASCII digits). Only such ids are sent to the registry.
func ValidTaxID(s string) bool {
	return taxIDPattern.MatchString(s)
}

// QueryURL builds the exact-match, single-result request URL for taxID.
// Every parameter value is query-escaped.
func (c *Client) QueryURL(taxID string) string {
	params := []struct{ key, value string }{
		{"$format", "json"},
		{"$filter", "Business_Accounting_NO eq " + taxID},
		{"$skip", "0"},
		{"$top", "1"},
	}
	var b strings.Builder
	b.WriteString(c.baseURL)
	for i, p := range params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(strings.ReplaceAll(url.QueryEscape(p.value), "+", "%20"))
	}
	return b.String()
}

// Lookup returns the registered name for taxID. found is false when the
// registry has no single record with a non-empty name, and when taxID is not
// a well-formed unified business number (no request is made). err covers
// transport failures, timeouts, non-2xx replies, and unparseable bodies.
func (c *Client) Lookup(ctx context.Context, taxID string) (name string, found bool, err error) {
	if !ValidTaxID(taxID) {
		return "", false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.http.Download(ctx, c.QueryURL(taxID))
	if err != nil {
		return "", false, err
	}
	defer body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(body, 1<<20))
	if err != nil {
		return "", false, eris.Wrapf(err, "registry: read response for %s", taxID)
	}
	return ParseName(raw)
}

// ParseName extracts the name from a registry response body. An empty body
// means no match.
func ParseName(raw []byte) (string, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false, nil
	}
	if !gjson.ValidBytes(raw) {
		return "", false, eris.New("registry: response is not valid JSON")
	}

	res := gjson.ParseBytes(raw)
	if !res.IsArray() {
		return "", false, eris.New("registry: response is not a JSON array")
	}
	if res.Get("#").Int() != 1 {
		return "", false, nil
	}

	rec := res.Get("0")
	for _, field := range []string{"Company_Name", "Business_Name"} {
		if v := bytes.TrimSpace([]byte(rec.Get(field).String())); len(v) > 0 {
			return string(v), true, nil
		}
	}
	return "", false, nil
}
