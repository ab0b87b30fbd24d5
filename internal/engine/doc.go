// Package engine drives scheduled sends: it scans for due schedules,
// claims each one by advancing next_due BEFORE any fetch/render/send
// work, summarizes live inventory, and records exactly one outcome per
// schedule per invocation.
//
// The claim-before-work ordering is the core correctness mechanism: an
// overlapping invocation that reads a schedule after the claim observes
// a future next_due and will not reselect it.
package engine
