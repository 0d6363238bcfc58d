package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/supla-device/internal/channel"
	"github.com/sweeney/supla-device/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"hex": func(v channel.Value) string {
		return fmt.Sprintf("% x", v[:])
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{if .Config.Name}}{{.Config.Name}}{{else}}SUPLA Device{{end}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>{{if .Config.Name}}{{.Config.Name}}{{else}}SUPLA Device{{end}}<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Session</h2>
<table>
<tr><th>State</th><td id="session" class="{{if .Registered}}connected{{else}}disconnected{{end}}">{{stateOrUnknown .Session}}</td></tr>
<tr><th>Status</th><td id="status">{{.Code}} {{.Message}}</td></tr>
<tr><th>Activity timeout</th><td id="timeout">{{.ActivityTimeout}}s</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Server</th><td>{{.Config.Server}}:{{.Config.Port}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Channels</h2>
<table id="channels">
{{range .Channels}}<tr><th>#{{.Number}} {{.Type}}</th><td>{{hex .Value}}</td></tr>
{{end}}</table>

{{if .Shutters}}<h2>Roller shutters</h2>
<table id="shutters">
{{range .Shutters}}<tr><th>#{{.Channel}}</th><td>{{if .Calibrated}}{{.Percent}}%{{else}}not calibrated{{end}} {{.Moving}}</td></tr>
{{end}}</table>{{end}}

<h2>Values</h2>
<table>
<tr><th>Sent</th><td id="sent">{{.Counts.Sent}}</td></tr>
<tr><th>Suppressed</th><td id="suppressed">{{.Counts.Suppressed}}</td></tr>
<tr><th>Failed</th><td id="failed">{{.Counts.Failed}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Loop</th><td>{{.Config.LoopMs}}ms</td></tr>
<tr><th>Timer</th><td>{{.Config.TimerMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var proto = location.protocol === "https:" ? "wss://" : "ws://";

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function text(id, v) {
    var el = document.getElementById(id);
    if (el) { el.textContent = v; }
  }

  function connect() {
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var s = JSON.parse(ev.data).status;
        text("session", s.session);
        document.getElementById("session").className = s.registered ? "connected" : "disconnected";
        text("status", s.code_name + " " + s.message);
        text("timeout", s.activity_timeout + "s");
        text("sent", s.value_counts.sent);
        text("suppressed", s.value_counts.suppressed);
        text("failed", s.value_counts.failed);
        var rows = "";
        (s.channels || []).forEach(function(c) {
          rows += "<tr><th>#" + c.number + " " + c.type + "</th><td>" + c.value + "</td></tr>";
        });
        document.getElementById("channels").innerHTML = rows;
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
