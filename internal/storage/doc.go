// Package storage persists the moderation state blob and an audit trail.
//
// Drivers:
//   - "file": one JSON document replaced atomically (tmp + rename) on every
//     save, plus an append-only <prefix>.audit.jsonl
//   - "sqlite": the same JSON document in a single-row table, plus an audit table
//
// Stores do not serialize callers; the moderation service holds its state lock
// around every Save.
package storage
