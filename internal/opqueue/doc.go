// Package opqueue provides the durable operation queue backing offline
// sync. Items persist in SQLite across restarts, drain in priority order
// with per-document FIFO serialization, and retry with capped exponential
// backoff until their budget runs out. Status transitions fan out through an
// in-process event hub.
package opqueue
