// Package wire owns the fixed-width CQC header layouts.
//
// Ownership boundary:
// - control/command/extended/notify header encode and decode
// - closed control type and instruction enumerations
// - option bitset
//
// Decoding never substitutes a default for an unknown enum byte; it returns
// a *CodecError instead.
package wire
