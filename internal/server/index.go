package server

import (
	"net/http"
)

// indexHTML is a minimal status page listing jobs and linking their previews.
// It polls the JSON API; progress streaming happens over the SSE endpoint.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>deepdream</title>
<style>
body { font-family: monospace; margin: 2rem; background: #111; color: #ddd; }
h1 { font-size: 1.2rem; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 0.3rem 0.8rem; border-bottom: 1px solid #333; }
a { color: #8cf; }
.state-running { color: #fc6; }
.state-completed { color: #6f6; }
.state-failed, .state-cancelled { color: #f66; }
</style>
</head>
<body>
<h1>deepdream jobs</h1>
<table>
<thead><tr><th>ID</th><th>State</th><th>Octave</th><th>Step</th><th>Last loss</th><th>Peak loss</th><th>Preview</th></tr></thead>
<tbody id="jobs"></tbody>
</table>
<script>
async function refresh() {
  const res = await fetch('/api/v1/jobs');
  const jobs = await res.json();
  const rows = jobs.map(j =>
    '<tr><td>' + j.id + '</td>' +
    '<td class="state-' + j.state + '">' + j.state + '</td>' +
    '<td>' + j.octave + '/' + j.octaves + '</td>' +
    '<td>' + j.step + '</td>' +
    '<td>' + j.lastLoss.toFixed(4) + '</td>' +
    '<td>' + j.peakLoss.toFixed(4) + '</td>' +
    '<td><a href="/api/v1/jobs/' + j.id + '/preview.png">preview</a></td></tr>');
  document.getElementById('jobs').innerHTML = rows.join('');
}
refresh();
setInterval(refresh, 2000);
</script>
</body>
</html>
`

// handleIndex serves the status page at /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}
