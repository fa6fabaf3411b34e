// Package quorum provides the fan-out used by repair rounds: query every
// replica in parallel and return as soon as a required number of usable
// answers has arrived, tracking failures separately.
package quorum
