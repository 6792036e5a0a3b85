package metrics

import (
	"expvar"
)

// Engine metrics keyed by node name or execution status.
var (
	nodeExecutions = expvar.NewMap("secagent_node_executions_total")
	executions     = expvar.NewMap("secagent_executions_total")
)

// Verification loop metrics keyed by artifact kind (script, report).
var (
	verifyAttempts = expvar.NewMap("secagent_verify_attempts_total")
	verifyGiveUps  = expvar.NewMap("secagent_verify_giveups_total")
	verifyFailOpen = expvar.NewMap("secagent_verify_failopen_total")
)

// Side-effect metrics keyed by notification kind.
var (
	webhookFailures = expvar.NewMap("secagent_webhook_failures_total")
)

// Engine helpers
func IncNodeExecution(node string) { nodeExecutions.Add(node, 1) }
func IncExecution(status string)   { executions.Add(status, 1) }

// Verification helpers
func IncVerifyAttempt(kind string)  { verifyAttempts.Add(kind, 1) }
func IncVerifyGiveUp(kind string)   { verifyGiveUps.Add(kind, 1) }
func IncVerifyFailOpen(kind string) { verifyFailOpen.Add(kind, 1) }

// Webhook helpers
func IncWebhookFailure(kind string) { webhookFailures.Add(kind, 1) }

// Value returns the current value of a counter in one of the published maps,
// or 0 when it has not been touched yet.
func Value(name, key string) int64 {
	m, ok := expvar.Get(name).(*expvar.Map)
	if !ok {
		return 0
	}
	v, ok := m.Get(key).(*expvar.Int)
	if !ok {
		return 0
	}
	return v.Value()
}
