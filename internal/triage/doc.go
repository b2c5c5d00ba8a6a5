// Package triage implements Argus's alert classification-and-dispatch
// pipeline: the Router (weighted rule scoring), the per-category Expert
// engines (remote-model analysis with a deterministic rule-based
// fallback), the System orchestrator, and the HistoryStore interface.
package triage
