// Package node wires a storage node together: the block server that answers
// peers, registration with the peer registry, filling the store from a seed
// file or from peers, and the parity scanner.
package node
