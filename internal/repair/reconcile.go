package repair

import (
	"paritystore/internal/peer"
	"paritystore/internal/storage"
)

// Vote is one peer's answer for the byte under repair.
type Vote struct {
	Peer  peer.Peer
	Value storage.ParityByte
}

// ReconcileResult represents the result of comparing votes.
type ReconcileResult struct {
	// Agreed is true when every vote carries the same value.
	Agreed bool
	// Value is the agreed value; zero when Agreed is false.
	Value storage.ParityByte
	Votes []Vote
}

// Reconcile checks whether all votes carry the same value. No votes means no
// agreement.
func Reconcile(votes []Vote) ReconcileResult {
	result := ReconcileResult{Votes: votes}
	if len(votes) == 0 {
		return result
	}

	first := votes[0].Value
	for _, v := range votes[1:] {
		if v.Value != first {
			return result
		}
	}
	result.Agreed = true
	result.Value = first
	return result
}
