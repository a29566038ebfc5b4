package health

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
)

// RenderDashboardHTML returns the status page served at GET /. The page polls
// /health/json a few times, then waits for a manual refresh.
func RenderDashboardHTML(health CollectResult) string {
	b, _ := json.Marshal(health)
	// Escape for embedding in a JS template literal: \ ` $
	jsonStr := string(b)
	jsonStr = strings.ReplaceAll(jsonStr, "\\", "\\\\")
	jsonStr = strings.ReplaceAll(jsonStr, "`", "\\`")
	jsonStr = strings.ReplaceAll(jsonStr, "$", "\\$")

	headline := "All Systems Operational"
	if health.Status != "ok" {
		headline = "System Issues Detected"
	}
	lastReq := "-"
	if m, ok := health.Traffic.LastRequest.(map[string]interface{}); ok {
		lastReq = fmt.Sprintf("%v %v", m["method"], m["path"])
	}
	authority := "not initialized"
	if health.Ledger.Initialized {
		authority = health.Ledger.Authority
	}

	return `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Carbon Registry · Ledger Status</title>
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <style>
    :root { --green: #1f7a4d; --dark: #16302b; --muted: #64748b; --bg: #f6f8f7; }
    body { background: var(--bg); color: var(--dark); font-family: system-ui, sans-serif; margin: 0; display: flex; justify-content: center; padding: 40px 20px; }
    .container { width: 100%; max-width: 1000px; }
    h1 { font-size: 44px; font-weight: 900; letter-spacing: -2px; margin: 0 0 8px; }
    .subtext { color: var(--muted); font-weight: 700; margin-bottom: 28px; }
    .grid { display: grid; grid-template-columns: repeat(3, 1fr); background: white; border-radius: 24px; box-shadow: 0 20px 60px -20px rgba(31,122,77,0.2); overflow: hidden; }
    .col { padding: 32px; border-right: 1px solid rgba(0,0,0,0.05); }
    .col:last-child { border-right: none; }
    .label { text-transform: uppercase; font-size: 11px; font-weight: 900; letter-spacing: 2px; color: #94a3b8; margin-bottom: 18px; }
    .big { font-size: 36px; font-weight: 900; margin-bottom: 10px; }
    .row { display: flex; justify-content: space-between; padding: 7px 0; border-bottom: 1px solid rgba(0,0,0,0.04); font-size: 14px; font-weight: 700; }
    .row:last-child { border-bottom: none; }
    .ok { color: var(--green); }
    .err { color: #dc2626; }
    .footer { margin-top: 18px; font-family: monospace; font-size: 13px; color: var(--muted); display: flex; justify-content: space-between; }
    button { background: var(--green); color: white; border: none; padding: 8px 18px; border-radius: 10px; cursor: pointer; font-weight: 800; }
    @media (max-width: 800px) { .grid { grid-template-columns: 1fr; } .col { border-right: none; } }
  </style>
</head>
<body>
  <div class="container">
    <h1 id="headline">` + headline + `</h1>
    <div class="subtext">Ledger counters, request traffic and dependency health.</div>
    <div class="grid">
      <div class="col">
        <div class="label">Ledger</div>
        <div class="big" id="issued">` + fmt.Sprint(health.Ledger.TotalCreditsIssued) + `</div>
        <div class="row"><span>Credits retired</span><span id="retired">` + fmt.Sprint(health.Ledger.TotalCreditsRetired) + `</span></div>
        <div class="row"><span>Projects</span><span id="projects">` + fmt.Sprint(health.Ledger.ProjectCount) + `</span></div>
        <div class="row"><span>Batches</span><span id="batches">` + fmt.Sprint(health.Ledger.BatchCount) + `</span></div>
        <div class="row"><span>Authority</span><span id="authority" style="font-size:10px">` + html.EscapeString(authority) + `</span></div>
      </div>
      <div class="col">
        <div class="label">Traffic</div>
        <div class="big" id="total-req">` + fmt.Sprint(health.Traffic.TotalRequests) + `</div>
        <div class="row"><span>Failed (5xx)</span><span id="failed" class="err">` + fmt.Sprint(health.Traffic.FailedCount) + `</span></div>
        <div class="row"><span>Rejected instructions</span><span id="rejected">` + fmt.Sprint(health.Traffic.RejectedInstructions) + `</span></div>
        <div class="row"><span>Success rate</span><span id="rate">` + health.Traffic.SuccessRate + `%</span></div>
        <div class="row"><span>Avg latency</span><span id="avg">` + fmt.Sprint(health.Traffic.AvgResponseTime) + `ms</span></div>
      </div>
      <div class="col">
        <div class="label">Dependencies</div>
        <div class="row"><span>Database</span><span id="dep-database"></span></div>
        <div class="row"><span>Redis</span><span id="dep-redis"></span></div>
        <div class="row"><span>Uptime</span><span id="uptime">` + fmt.Sprint(health.Runtime.UptimeSeconds) + `s</span></div>
        <div class="row"><span>Goroutines</span><span id="goroutines">` + fmt.Sprint(health.Runtime.Goroutines) + `</span></div>
        <div class="row"><span>Runtime</span><span style="font-size:11px">` + html.EscapeString(health.Runtime.GoVersion) + `</span></div>
      </div>
    </div>
    <div class="footer">
      <span id="last-req">` + html.EscapeString(lastReq) + `</span>
      <span><a href="/health/errors">/health/errors</a> · <button onclick="tick(true)">Refresh</button></span>
    </div>
  </div>
  <script>
    let left = 3;
    const set = (id, v) => { document.getElementById(id).innerText = v; };
    const dep = (name, d) => { const el = document.getElementById('dep-' + name); el.className = d.status === 'connected' || d.status === 'disabled' ? 'ok' : 'err'; el.innerText = d.status + (d.pingMs != null ? ' · ' + d.pingMs + ' ms' : ''); };
    const updateUI = (d) => {
      set('headline', d.status === 'ok' ? 'All Systems Operational' : 'System Issues Detected');
      set('issued', d.ledger.totalCreditsIssued); set('retired', d.ledger.totalCreditsRetired);
      set('projects', d.ledger.projectCount); set('batches', d.ledger.batchCount);
      set('authority', d.ledger.initialized ? d.ledger.authority : 'not initialized');
      set('total-req', d.traffic.totalRequests); set('failed', d.traffic.failedCount);
      set('rejected', d.traffic.rejectedInstructions); set('rate', d.traffic.successRate + '%');
      set('avg', d.traffic.avgResponseTime + 'ms'); set('uptime', d.runtime.uptimeSeconds + 's');
      set('goroutines', d.runtime.goroutines);
      if (d.traffic.lastRequest) set('last-req', d.traffic.lastRequest.method + ' ' + d.traffic.lastRequest.path);
      dep('database', d.dependencies.database); dep('redis', d.dependencies.redis);
    };
    async function tick(manual) { if (!manual && left <= 0) return; try { const r = await fetch('/health/json'); updateUI(await r.json()); if (!manual) left--; } catch (e) {} }
    updateUI(JSON.parse(` + "`" + jsonStr + "`" + `));
    setInterval(() => tick(), 10000);
  </script>
</body>
</html>`
}
