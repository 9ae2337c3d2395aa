// Package storage persists the quiet-hours schedule.
//
// There is exactly one record per store, addressed by Config.Key. Writes
// replace the whole record; there is no expiry. Backends:
//   - memory (default)
//   - file: one JSON document, replaced atomically
//   - sqlite / postgres through sqlx
//   - redis: one string key
package storage
