// Package identity is the relay credential store.
//
// Service registers users (username, email, password) and authenticates them
// by username, email or public identifier. Passwords are hashed with
// cmd/security/password and never leave this package. Every user gets an
// 8-character public identifier (see GenerateUnique) which doubles as the
// relay address of its WebSocket connection.
//
// Persistence is behind Repository; SQLite (default), MySQL, PostgreSQL and an
// in-memory implementation are provided. Unique constraints in the store are the
// authoritative conflict guard; Service pre-checks only to fail fast.
package identity
