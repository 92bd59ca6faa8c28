// Package preflight provides readiness checks for the filesystem paths and
// the remote endpoint that folio depends on.
//
// The daemon runs RunAll at startup: failed directory or disk-space checks
// block startup, while remote reachability is advisory because queued work
// is expected to survive offline periods. The CLI "folio status" command
// reuses the individual checks to display health.
package preflight
