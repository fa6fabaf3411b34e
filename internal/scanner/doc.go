// Package scanner sweeps the store for bytes whose parity check fails and
// hands them to the repair coordinator, one repair at a time.
package scanner
