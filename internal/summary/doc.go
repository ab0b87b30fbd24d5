// Package summary turns raw upstream inventory items into the formatted
// digest text a schedule sends.
//
// Summaries are ephemeral: upstream inventory changes continuously, so a
// summary is recomputed on every run and never persisted. Each category
// decodes the upstream JSON into its own normalized struct with explicit
// defaults for missing fields; nothing downstream sees raw JSON.
package summary
