// Package directory speaks the line-oriented directory protocol used for
// peer discovery:
//
//	INSC <ip> <port>   -> "true" on success, anything else is a refusal
//	nodes              -> zero or more "node <ip> <port>" lines, then "end"
//
// Client implements peer.Registry over one persistent connection. Server is a
// minimal in-memory directory used by tests and the directory binary.
package directory
