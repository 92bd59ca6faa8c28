// Package logging wraps log/slog with the handlers and attribute helpers
// shared across folio components. The console handler renders compact
// key=value lines for interactive use; the JSON handler targets log shipping.
package logging
