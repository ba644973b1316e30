// ABOUTME: Package doc for workflow
// ABOUTME: Registry, input validation, and the gated executor for runs

// Package workflow owns workflow definitions and their execution.
//
// A Handle describes one registered workflow version: its input schema,
// required permission, and optional tenant owner. The Registry resolves
// handles by ID and version, with version 0 meaning latest. The Executor
// runs the full gate sequence for every invocation, regardless of which
// channel it arrived on:
//
//	resolve -> validate inputs -> authorize -> tenant check -> quota
//
// and only then creates a run record and hands off to the Runtime. Runs
// progress queued -> running -> terminal exactly once; the executor's
// per-run transition lock is what makes cancellation races safe.
package workflow
