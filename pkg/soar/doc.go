// Package soar assembles the incident response agent from configuration:
// the language model client, the incident repository, webhook
// notifications, snapshot storage and the executor running the mode
// dispatch graph. Callers outside this module use Runtime instead of the
// internal packages.
package soar
