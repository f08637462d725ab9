// Package password provides password hashing and verification for the relay
// credential store.
//
// New hashes are Argon2id in a PHC-like encoded string. Verify also accepts
// bcrypt hashes written by older deployments. Hash strings are treated as
// untrusted input: Verify refuses hashes whose parameters exceed reasonable
// bounds relative to the configured ones.
package password
