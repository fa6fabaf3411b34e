package blockpb

import (
	"context"

	"google.golang.org/grpc"
)

const (
	serviceName     = "paritystore.v1.BlockService"
	fetchFullMethod = "/" + serviceName + "/Fetch"
)

// BlockServiceServer is the server API for BlockService.
type BlockServiceServer interface {
	// Fetch serves any number of request/response exchanges on one stream.
	Fetch(BlockService_FetchServer) error
}

// BlockService_FetchServer is the server side of a Fetch stream.
type BlockService_FetchServer interface {
	Send(*FetchResponse) error
	Recv() (*FetchRequest, error)
	grpc.ServerStream
}

// BlockService_FetchClient is the client side of a Fetch stream.
type BlockService_FetchClient interface {
	Send(*FetchRequest) error
	Recv() (*FetchResponse, error)
	grpc.ClientStream
}

// BlockServiceClient is the client API for BlockService.
type BlockServiceClient interface {
	Fetch(ctx context.Context, opts ...grpc.CallOption) (BlockService_FetchClient, error)
}

// BlockService_ServiceDesc describes BlockService for grpc.Server.RegisterService.
var BlockService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*BlockServiceServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Fetch",
			Handler:       fetchHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "blockpb",
}

// RegisterBlockServiceServer registers srv on s.
func RegisterBlockServiceServer(s grpc.ServiceRegistrar, srv BlockServiceServer) {
	s.RegisterService(&BlockService_ServiceDesc, srv)
}

func fetchHandler(srv any, stream grpc.ServerStream) error {
	return srv.(BlockServiceServer).Fetch(&fetchServer{stream})
}

type fetchServer struct {
	grpc.ServerStream
}

func (x *fetchServer) Send(m *FetchResponse) error {
	return x.ServerStream.SendMsg(m)
}

func (x *fetchServer) Recv() (*FetchRequest, error) {
	m := new(FetchRequest)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type blockServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewBlockServiceClient returns a client that always negotiates the
// blockwire codec.
func NewBlockServiceClient(cc grpc.ClientConnInterface) BlockServiceClient {
	return &blockServiceClient{cc: cc}
}

func (c *blockServiceClient) Fetch(ctx context.Context, opts ...grpc.CallOption) (BlockService_FetchClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &BlockService_ServiceDesc.Streams[0], fetchFullMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &fetchClient{stream}, nil
}

type fetchClient struct {
	grpc.ClientStream
}

func (x *fetchClient) Send(m *FetchRequest) error {
	return x.ClientStream.SendMsg(m)
}

func (x *fetchClient) Recv() (*FetchResponse, error) {
	m := new(FetchResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
