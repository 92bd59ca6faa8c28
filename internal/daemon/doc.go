// Package daemon coordinates the long-running folio process.
//
// It wires configuration, the document store, the operation queue, and the
// queue processor into a single lifecycle with flock-based locking to
// prevent multiple instances, and exposes a local HTTP API for status and
// queue inspection. Keep orchestration logic here: sync steps live in the
// processor and the stores.
package daemon
