// Package storage persists schedules and the append-only run log.
//
// The engine's write surface is deliberately narrow: claim bookkeeping
// (next_due/last_run), outcome bookkeeping (last_status/last_error,
// one-off completion) and run-log appends. Everything else on a
// schedule belongs to the external CRUD surface.
package storage
