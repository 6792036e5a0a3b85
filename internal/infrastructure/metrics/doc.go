// Package metrics exposes expvar-published counters used by the workflow
// engine, the verification loops and the webhook notifier. It avoids
// external dependencies and is rendered by secagent-server on /debug/vars
// and /metrics.
package metrics
