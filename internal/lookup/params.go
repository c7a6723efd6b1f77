package lookup

import (
	"net/url"
	"strconv"
	"strings"
)

// Accepted query parameter spellings. The local-language spelling is listed first and wins.
var (
	taxIDParams    = []string{"統一編號", "id"}
	nameParams     = []string{"單位名稱", "name"}
	skipLiveParams = []string{"skip_live", "skip_live_registry"}
)

// ParseParams builds a Query from URL parameters. ok is false when neither a
// tax id nor a name was supplied.
func ParseParams(v url.Values) (q Query, ok bool) {
	q.TaxID = first(v, taxIDParams)
	q.Name = first(v, nameParams)
	if raw := first(v, skipLiveParams); raw != "" {
		q.SkipLive, _ = strconv.ParseBool(raw)
	}
	return q, q.TaxID != "" || q.Name != ""
}

func first(v url.Values, keys []string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(v.Get(k)); s != "" {
			return s
		}
	}
	return ""
}
