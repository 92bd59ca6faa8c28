// Package services defines the shared error taxonomy used by the document
// store, operation queue, processor, and remote sync collaborator. Errors are
// tagged with sentinel markers so callers can classify failures with
// errors.Is without depending on message text.
package services
