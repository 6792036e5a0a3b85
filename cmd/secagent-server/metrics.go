package main

import (
	"expvar"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type metricMeta struct {
	typ, help string
	label     string // empty for scalar metrics
}

// metas describes the metrics published by the agent.
var metas = map[string]metricMeta{
	"secagent_executions_total":       {typ: "counter", help: "Finished executions", label: "status"},
	"secagent_node_executions_total":  {typ: "counter", help: "Node applications", label: "node"},
	"secagent_verify_attempts_total":  {typ: "counter", help: "Verification attempts", label: "kind"},
	"secagent_verify_giveups_total":   {typ: "counter", help: "Verification loops that reached the retry ceiling", label: "kind"},
	"secagent_verify_failopen_total":  {typ: "counter", help: "Verifier failures treated as success", label: "kind"},
	"secagent_webhook_failures_total": {typ: "counter", help: "Failed webhook deliveries", label: "kind"},
}

// promMetricsHandler renders expvar-published metrics in Prometheus text
// format. Unknown integer vars are emitted as untyped gauges; everything
// else is skipped.
func promMetricsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	names := make([]string, 0, 32)
	expvar.Do(func(kv expvar.KeyValue) { names = append(names, kv.Key) })
	sort.Strings(names)

	for _, name := range names {
		v := expvar.Get(name)
		m, known := metas[name]
		if !known {
			if iv, ok := v.(*expvar.Int); ok {
				fmt.Fprintf(w, "# TYPE %s gauge\n%s %s\n", name, name, iv.String())
			}
			continue
		}

		fmt.Fprintf(w, "# HELP %s %s\n", name, sanitizeHelp(m.help))
		fmt.Fprintf(w, "# TYPE %s %s\n", name, m.typ)
		mp, ok := v.(*expvar.Map)
		if !ok || m.label == "" {
			fmt.Fprintf(w, "%s %s\n", name, v.String())
			continue
		}
		sub := make([]expvar.KeyValue, 0, 8)
		mp.Do(func(kv expvar.KeyValue) { sub = append(sub, kv) })
		sort.Slice(sub, func(i, j int) bool { return sub[i].Key < sub[j].Key })
		for _, kv := range sub {
			fmt.Fprintf(w, "%s{%s=\"%s\"} %s\n", name, m.label, escapeLabel(kv.Key), kv.Value.String())
		}
	}
}

func sanitizeHelp(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}

// escapeLabel escapes backslash, double quote and newline.
func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
