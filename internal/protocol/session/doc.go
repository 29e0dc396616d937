// Package session owns one synchronous client conversation with a CQC node.
//
// Ownership boundary:
// - connect and shutdown of the node stream
// - request write and reply read ordering
// - reply correlation by control type and the desynchronized state
//
// A Session is not safe for concurrent use. The protocol has no request ids,
// so a reply belongs to whichever call reads it first; callers serialize
// externally or open one Session per goroutine.
package session
