// Package quiethours models the user's do-not-disturb window and decides
// whether it is active at a given instant.
//
// IsActive is pure. A window is half-open, [Start, End): a push arriving
// exactly at End is delivered. Start > End spans midnight. Start == End is a
// zero-length window and is never active.
package quiethours
