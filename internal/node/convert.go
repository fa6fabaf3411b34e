package node

import (
	"paritystore/internal/blockpb"
	"paritystore/internal/storage"
)

// blockToProto converts a store snapshot into a reply. If any byte fails its
// parity check the unavailable marker is returned and no data leaves the node.
func blockToProto(block []storage.ParityByte) *blockpb.FetchResponse {
	resp := &blockpb.FetchResponse{Version: blockpb.ProtocolVersion}
	for _, b := range block {
		if !b.IsParityOk() {
			return resp
		}
	}

	resp.Available = true
	resp.Values = make([]byte, len(block))
	resp.Parity = make([]byte, len(block))
	for k, b := range block {
		resp.Values[k] = b.Value
		if b.Parity {
			resp.Parity[k] = 1
		}
	}
	return resp
}
