package server

import (
	"html/template"
	"net/http"
)

var helpPage = template.Must(template.New("help").Parse(`<!DOCTYPE html>
<html lang="zh-Hant">
<head><meta charset="utf-8"><title>統一編號查詢 API</title></head>
<body>
<h1>統一編號查詢 API</h1>
<p>Look up Taiwan unified business numbers. Live registry results are tried first, then the reconciled open-data table.</p>
<h2>GET {{.Lookup}}</h2>
<ul>
<li><code>{{.Lookup}}?統一編號=03730043</code> or <code>?id=03730043</code></li>
<li><code>{{.Lookup}}?單位名稱=臺北市</code> or <code>?name=臺北市</code> (substring match, up to 50 rows)</li>
<li><code>&amp;skip_live=true</code> skips the live registry</li>
</ul>
<h2>POST {{.Batch}}</h2>
<pre>{"ids": ["03730043", "99999999"], "skip_live_registry": false}</pre>
<p>Responses are <code>{"data": [{"tax_id", "name", "source_label"}], "error": null}</code>.</p>
</body>
</html>
`))

func (h *handler) handleHelp(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = helpPage.Execute(w, map[string]string{
		"Lookup": "/api/lookup",
		"Batch":  "/api/lookup/batch",
	})
}
