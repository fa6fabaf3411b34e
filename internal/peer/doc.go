// Package peer holds everything a node needs to talk to its replicas: peer
// addresses, the registry contract used to discover them, and sessions over
// the block protocol for fetching byte ranges.
package peer
