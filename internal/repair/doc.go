// Package repair implements the correction coordinator: given a byte that
// fails its parity check, it asks every known peer for that byte and commits
// a value only when two independent peers agree on it.
package repair
