// Package protocol groups the CQC client protocol layers.
//
// Ownership boundary:
// - wire: fixed header layouts and enum codes
// - command: request assembly
// - fault: error taxonomy and reply classification
// - session: the synchronous client conversation
package protocol
