// Package blockpb defines the peer data protocol: the FetchRequest and
// FetchResponse messages, their protobuf wire encoding, the gRPC codec that
// carries them, and the BlockService stream descriptor.
//
// Messages are encoded field by field with protowire so the schema stays
// tagged and forward compatible: unknown fields are skipped and every message
// carries the protocol version it was written with. block.proto records the
// schema.
package blockpb
