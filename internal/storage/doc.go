// Package storage provides the replica store: a fixed-size, index-addressed
// array of parity-checked bytes covering a whole file. Each byte carries a
// parity bit so that local corruption can be detected (not corrected) by
// recomputing the parity of the stored value.
package storage
