// Package main hosts the folio CLI entrypoint and command graph.
//
// The Cobra-based command tree covers document import and inspection, queue
// maintenance, statistics, and configuration scaffolding. Status talks to a
// running daemon over its local HTTP API and falls back to inspecting the
// databases directly when the daemon is down.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
