// Package storage is the task store: the single source of truth for task
// records and the only component that persists task state. The scheduler
// reads tasks and proposes updates through it but holds no durable state of
// its own.
//
// Drivers:
//   - File: snapshot + append-only journal, dependency-free
//   - SQLite: database file (optional build tag)
//   - Memory: volatile, for tests and storage-less runs
package storage
