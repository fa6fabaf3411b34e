package blockpb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestFetchResponse_EncodeDecode(t *testing.T) {
	in := &FetchResponse{
		Version:   ProtocolVersion,
		Available: true,
		Values:    []byte{0x42, 0x00, 0xff},
		Parity:    []byte{0, 0, 0},
	}

	var out FetchResponse
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.Equal(t, *in, out)
}

func TestFetchResponse_UnavailableMarkerHasNoData(t *testing.T) {
	in := &FetchResponse{Version: ProtocolVersion, Available: false}

	var out FetchResponse
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.False(t, out.Available)
	assert.Empty(t, out.Values)
	assert.Empty(t, out.Parity)
}

func TestFetchRequest_SkipsUnknownFields(t *testing.T) {
	b := (&FetchRequest{Version: ProtocolVersion, Start: 4, Length: 1}).Marshal()
	b = protowire.AppendTag(b, 15, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("from a newer peer"))
	b = protowire.AppendTag(b, 16, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)

	var out FetchRequest
	require.NoError(t, out.Unmarshal(b))
	assert.Equal(t, FetchRequest{Version: ProtocolVersion, Start: 4, Length: 1}, out)
}

func TestFetchRequest_RejectsNewerVersion(t *testing.T) {
	b := (&FetchRequest{Version: ProtocolVersion + 1, Start: 0, Length: 1}).Marshal()

	var out FetchRequest
	assert.ErrorIs(t, out.Unmarshal(b), ErrUnsupportedVersion)
}

func TestFetchRequest_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"truncated varint", []byte{0x08, 0x80}},
		{"truncated tag", []byte{0x80}},
		{"wrong wire type for start", protowire.AppendBytes(protowire.AppendTag(nil, fieldRequestStart, protowire.BytesType), []byte{1})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out FetchRequest
			assert.Error(t, out.Unmarshal(tt.data))
		})
	}
}

func TestCodec_RejectsForeignTypes(t *testing.T) {
	c := Codec{}

	_, err := c.Marshal("not a message")
	assert.Error(t, err)
	assert.Error(t, c.Unmarshal([]byte{}, new(int)))
	assert.Equal(t, CodecName, c.Name())

	b, err := c.Marshal(&FetchRequest{Version: ProtocolVersion, Start: 1, Length: 2})
	require.NoError(t, err)
	var req FetchRequest
	require.NoError(t, c.Unmarshal(b, &req))
	assert.Equal(t, uint64(2), req.Length)
}
