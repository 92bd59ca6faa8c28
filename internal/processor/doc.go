// Package processor drains the operation queue against the remote document
// service. It claims one eligible item at a time, executes it, and maps the
// outcome onto the queue lifecycle: success completes the item, retryable
// failures reschedule it with backoff, everything else fails it permanently.
// Version conflicts resolve through the configured policy before any retry
// accounting happens.
package processor
