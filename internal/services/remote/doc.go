// Package remote implements the client side of document synchronization.
// The queue processor pushes creates, deltas, and deletes through a Syncer;
// the HTTP implementation classifies every failure with the services error
// markers so retry decisions stay in one place.
package remote
