// Package delta implements a binary delta codec: Calculate produces an edit
// script of copy and insert ops that transforms a base buffer into a target
// buffer, Apply replays it with strict bounds and checksum verification, and
// Encode/Decode frame a script into a compact snappy-compressed payload for
// shipping to the remote sync endpoint.
package delta
