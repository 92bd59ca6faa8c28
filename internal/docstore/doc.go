// Package docstore is the durable local document store. Documents, their
// annotations, and their edit history live in separate SQLite tables joined
// by foreign key, so cascade deletion and storage accounting are explicit
// queries rather than object-graph traversal. All mutation goes through
// Store methods; storage stats are derived from the document table on every
// read and can never drift.
package docstore
