// Package storage provides the byte store keysafe persists into.
//
// Two backends implement Store:
//   - Bolt (default): one BBolt bucket per namespace, plus a config bucket
//     holding format version, created/modified timestamps and an install id
//   - SQLite: a single kv(ns, key, value, updated_at) table
//
// The store never sees plaintext secrets. Master secret records hold only a
// salt and an encrypted token, and entry secrets are encrypted before the
// collection is written.
//
// BBolt provides ACID transactions, file locking, and corruption detection.
package storage
