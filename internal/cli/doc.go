// Package cli implements the broker's command-line tool.
//
// # Overview
//
// The CLI is embedded in the same binary as the rest of the broker: it
// talks to ingress directly, in-process, rather than over HTTP, so it
// carries no client/server protocol of its own.
//
// # Key components
//
// ## Client
//
// A thin wrapper around ingress.Ingress — one method per ingress
// operation; command bodies call the Client, and only use the ingress
// package directly for its parameter types (ingress.ListFilter).
//
// ## Output
//
// Dual-mode rendering: tables (text/tabwriter) by default, or JSON
// (--json). Data goes to stdout, messages (Success/Error) to stderr, so
// pipelines stay clean: broker task list --json | jq .
//
// ## Commands
//
// Cobra commands grouped by resource:
//   - task: submit, get, list, retry, delete
//   - queue: status, requeue-orphaned
//   - dlq: list
//   - circuit: reset-all, open-all
//
// Each group is built by a factory function (NewTaskCmd etc.) taking
// clientFn and outputFn — closures that lazily build Client and Output
// after PersistentFlags are parsed.
package cli
