package html

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<title>{{.Title}}</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Helvetica, Arial, sans-serif; margin: 0; background: #f9fafb; color: #1f2937; }
		main { max-width: 1280px; margin: 0 auto; padding: 24px; }
		h1 { font-size: 24px; font-weight: 500; border-bottom: 1px solid #e5e7eb; padding-bottom: 12px; }
		h2 { font-size: 18px; font-weight: 500; margin: 0; }
		form.inline { display: inline; }
		input[type=text] { padding: 8px 10px; border: 1px solid #e5e7eb; border-radius: 4px; font-size: 14px; }
		button { padding: 6px 12px; border: 1px solid #e5e7eb; border-radius: 4px; background: #fff; font-size: 13px; cursor: pointer; }
		button:hover { background: #f3f4f6; }
		button.danger { color: #ef4444; border-color: #fee2e2; }
		.connect { display: flex; gap: 8px; margin-bottom: 24px; }
		.connect input { flex: 1; }
		.grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(420px, 1fr)); gap: 16px; margin-bottom: 16px; }
		.panel { background: #fff; border: 1px solid #e5e7eb; border-radius: 8px; padding: 20px; }
		.panel-header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 16px; }
		.kv { display: grid; grid-template-columns: 140px 1fr; gap: 6px 16px; font-size: 13px; }
		.kv span:nth-child(odd) { color: #6b7280; }
		.empty { color: #9ca3af; font-size: 14px; font-style: italic; }
		.bar { width: 100%; background: #f3f4f6; border-radius: 999px; height: 6px; margin-top: 12px; }
		.bar span { display: block; height: 100%; border-radius: inherit; background: #9ca3af; }
		.muted { font-size: 12px; color: #6b7280; }
		.notifications { position: fixed; top: 16px; right: 16px; display: flex; flex-direction: column; gap: 8px; z-index: 10; }
		.notification { padding: 10px 14px; border-radius: 6px; font-size: 14px; box-shadow: 0 4px 12px rgba(0,0,0,0.08); background: #fff; border-left: 4px solid #9ca3af; }
		.notification.success { border-left-color: #22c55e; }
		.notification.error { border-left-color: #ef4444; }
		.plan-meta { display: grid; grid-template-columns: repeat(auto-fit, minmax(180px, 1fr)); gap: 8px; font-size: 13px; margin-bottom: 16px; }
		.plan-tree, .node-children { list-style: none; margin: 0; padding: 0; }
		.node-children { margin-left: 24px; border-left: 1px solid #d1d5db; padding-left: 20px; }
		.node-card { background: #fff; border: 1px solid #e5e7eb; border-radius: 6px; padding: 12px 14px; margin: 8px 0; }
		.node-name { font-weight: 600; font-size: 14px; }
		.metrics { display: grid; grid-template-columns: repeat(auto-fill, minmax(200px, 1fr)); gap: 4px 12px; font-size: 12px; margin-top: 8px; }
		.metrics span.value { color: #374151; font-family: ui-monospace, monospace; }
		.node-panel { margin-top: 8px; font-size: 12px; }
		.node-panel table { border-collapse: collapse; }
		.node-panel td { padding: 2px 8px 2px 0; }
		iframe.flamegraph { width: 100%; height: 600px; border: 0; }
		.tools { display: grid; grid-template-columns: repeat(auto-fit, minmax(320px, 1fr)); gap: 16px; }
	</style>
</head>
<body>
	{{- if .Notifications }}
	<div class="notifications">
		{{- range .Notifications }}
		<div class="notification {{.Kind}}" id="notification-{{.ID}}">{{.Message}}
			<form class="inline" method="post" action="/notifications/{{.ID}}/dismiss?host={{$.Host}}"><button type="submit">&times;</button></form>
		</div>
		{{- end }}
	</div>
	{{- end }}
	<main>
		<h1>{{.Title}}</h1>

		<form class="connect" method="post" action="/connect">
			<input type="text" name="host" placeholder="Server address" value="{{.Host}}">
			<button type="submit">Connect</button>
		</form>

		<div class="grid">
			<section class="panel" id="system-info">
				<div class="panel-header">
					<h2>System Information</h2>
					<form class="inline" method="post" action="/refresh/system?host={{.Host}}"><button type="submit">Refresh</button></form>
				</div>
				{{- with .System }}
				<div class="kv">
					<span>Host Name</span><span>{{.HostName}}</span>
					<span>OS</span><span>{{.Name}} ({{.OS}})</span>
					<span>Kernel</span><span>{{.Kernel}}</span>
					<span>CPU Cores</span><span>{{.CPUCores}}</span>
					<span>Memory</span><span>{{bytes .UsedMemoryBytes}} / {{bytes .TotalMemoryBytes}} used</span>
					<span>Server Resident</span><span>{{bytes .ServerResidentMemoryBytes}}</span>
					<span>Server Virtual</span><span>{{bytes .ServerVirtualMemoryBytes}}</span>
				</div>
				{{- else }}
				<div class="empty">Connect to view system information</div>
				{{- end }}
			</section>

			<section class="panel" id="cache-info">
				<div class="panel-header">
					<h2>Cache Information</h2>
					<form class="inline" method="post" action="/refresh/cache?host={{.Host}}"><button type="submit">Refresh</button></form>
				</div>
				{{- with .Cache }}
				<div class="kv">
					<span>Batch Size</span><span>{{.BatchSize}}</span>
					<span>Max Cache</span><span>{{bytes .MaxCacheBytes}}</span>
					<span>Memory Usage</span><span>{{bytes .MemoryUsageBytes}}</span>
					<span>Disk Usage</span><span>{{bytes .DiskUsageBytes}}</span>
				</div>
				<div class="bar"><span style="width: {{$.Utilization}}%"></span></div>
				<div class="muted">{{$.Utilization}}% utilized</div>
				{{- else }}
				<div class="empty">Connect to view cache configuration</div>
				{{- end }}
				{{- with .Parquet }}
				<h3 class="muted">Storage</h3>
				<div class="kv">
					<span>Directory</span><span title="{{.Directory}}">{{.Directory}}</span>
					<span>File Count</span><span>{{count .FileCount}}</span>
					<span>Total Size</span><span>{{bytes .TotalSizeBytes}}</span>
				</div>
				{{- end }}
				<div class="panel-header">
					<form class="inline" method="post" action="/actions/reset_cache?host={{.Host}}"><button type="submit">Reset Cache</button></form>
					<form class="inline" method="post" action="/actions/shutdown?host={{.Host}}"><button type="submit" class="danger">Shutdown Server</button></form>
				</div>
			</section>
		</div>

		<section class="panel" id="execution-plans">
			<div class="panel-header">
				<h2>Execution Plans</h2>
				<form class="inline" method="post" action="/refresh/plans?host={{.Host}}"><button type="submit">Refresh</button></form>
			</div>
			{{- if .PlanOptions }}
			<form method="post" action="/plans/select?host={{.Host}}">
				<select name="plan">
					{{- range .PlanOptions }}
					<option value="{{.ID}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>
					{{- end }}
				</select>
				<button type="submit">Show</button>
			</form>
			{{- else }}
			<div class="empty">No execution plans available</div>
			{{- end }}

			{{- with .Plan }}
			<div class="plan-meta">
				<div><span class="muted">Plan ID</span><br>{{.ID}}</div>
				<div><span class="muted">Created</span><br>{{.Created}}</div>
				{{- if .Name }}<div><span class="muted">Name</span><br>{{.Name}}</div>{{ end }}
				{{- if .ExecutionTime }}<div><span class="muted">Query Execution Time</span><br>{{.ExecutionTime}}</div>{{ end }}
				{{- if .Network }}<div><span class="muted">Network Traffic</span><br>{{.Network}}</div>{{ end }}
			</div>
			{{- if .Root }}
			<ul class="plan-tree">
				{{ template "node" .Root }}
			</ul>
			{{- end }}
			{{- if .HasFlamegraph }}
			<div class="panel-header">
				<h2>Flamegraph</h2>
				<a href="/flamegraph/{{.ID}}.svg?host={{$.Host}}" download="flamegraph-{{.ID}}.svg">Download SVG</a>
			</div>
			<iframe class="flamegraph" sandbox="allow-scripts" srcdoc="{{.Flamegraph}}"></iframe>
			{{- end }}
			{{- end }}
		</section>

		<h2>Profiling Tools</h2>
		<div class="tools">
			<section class="panel" id="trace">
				<h3>Trace Collection</h3>
				{{- if .TraceActive }}
				<form method="post" action="/actions/stop_trace?host={{.Host}}">
					<input type="text" name="path" value="{{.TracePath}}">
					<button type="submit" class="danger">Stop Trace</button>
				</form>
				<div class="muted">Trace collection is active. Stop to save trace data.</div>
				{{- else }}
				<form method="post" action="/actions/start_trace?host={{.Host}}">
					<input type="text" name="path" value="{{.TracePath}}">
					<button type="submit">Start Trace</button>
				</form>
				<div class="muted">Start trace collection to capture cache operations.</div>
				{{- end }}
			</section>
			<section class="panel" id="cache-stats">
				<h3>Cache Statistics</h3>
				<form method="post" action="/actions/cache_stats?host={{.Host}}">
					<input type="text" name="path" value="{{.StatsPath}}">
					<button type="submit">Get Cache Stats</button>
				</form>
			</section>
			{{- with .Flight }}
			<section class="panel" id="flight">
				<h3>Flight Endpoint</h3>
				<form class="inline" method="post" action="/probe?host={{$.Host}}"><button type="submit">Probe</button></form>
				<div class="kv">
					<span>Address</span><span>{{.Address}}</span>
					<span>Reachable</span><span>{{if .Reachable}}yes ({{.Latency}}){{else}}no{{end}}</span>
					{{- if .Actions }}<span>Actions</span><span>{{range $i, $a := .Actions}}{{if $i}}, {{end}}{{$a}}{{end}}</span>{{ end }}
					{{- if .Error }}<span>Error</span><span>{{.Error}}</span>{{ end }}
				</div>
			</section>
			{{- end }}
		</div>
	</main>

	{{ define "node" }}
	<li>
		<div class="node-card" id="node-{{.Path}}">
			<div class="node-name">{{.Name}}</div>
			{{- if .Metrics }}
			<div class="metrics">
				{{- range .Metrics }}
				<span>{{.Name}}: <span class="value">{{.Value}}</span></span>
				{{- end }}
			</div>
			{{- end }}
			{{- if .HasStats }}
			<div class="node-panel">
				<form class="inline" method="post" action="/toggle?host={{.Host}}">
					<input type="hidden" name="plan" value="{{.PlanID}}">
					<input type="hidden" name="panel" value="statistics">
					<input type="hidden" name="path" value="{{.Path}}">
					<button type="submit">{{if .StatsOpen}}Hide{{else}}Show{{end}} Statistics</button>
				</form>
				{{- if .StatsOpen }}
				<table>
					{{- if .NumRows }}<tr><td class="muted">Rows</td><td>{{.NumRows}}</td></tr>{{ end }}
					{{- if .TotalBytes }}<tr><td class="muted">Total Bytes</td><td>{{.TotalBytes}}</td></tr>{{ end }}
					{{- range .Columns }}
					<tr><td>{{.Name}}</td><td>{{range .Values}}{{.Name}}: {{.Value}} {{end}}</td></tr>
					{{- end }}
				</table>
				{{- if .MoreColumns }}<div class="muted">... and {{.MoreColumns}} more columns</div>{{ end }}
				{{- end }}
			</div>
			{{- end }}
			{{- if .Schema }}
			<div class="node-panel">
				<form class="inline" method="post" action="/toggle?host={{.Host}}">
					<input type="hidden" name="plan" value="{{.PlanID}}">
					<input type="hidden" name="panel" value="schema">
					<input type="hidden" name="path" value="{{.Path}}">
					<button type="submit">{{if .SchemaOpen}}Hide{{else}}Show{{end}} Schema</button>
				</form>
				{{- if .SchemaOpen }}
				<table>
					{{- range .Schema }}
					<tr><td>{{.Name}}</td><td class="muted">{{.DataType}}</td></tr>
					{{- end }}
				</table>
				{{- end }}
			</div>
			{{- end }}
		</div>
		{{- if .Children }}
		<ul class="node-children">
			{{- range .Children }}
				{{ template "node" . }}
			{{- end }}
		</ul>
		{{- end }}
	</li>
	{{ end }}
</body>
</html>
`
