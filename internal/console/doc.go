// Package console reads administrative commands, one per line. The only
// command is "ERROR <index>", which corrupts the byte at index so the
// scanner and repair path can be exercised by hand.
package console
