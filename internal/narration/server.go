package narration

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// SpeakerServer is implemented by TTS backends serving ServiceName.
type SpeakerServer interface {
	Speak(ctx context.Context, sessionID, text string) error
}

// RegisterNarratorServer registers srv on s under ServiceName.
func RegisterNarratorServer(s *grpc.Server, srv SpeakerServer) {
	s.RegisterService(&narratorServiceDesc, srv)
}

var narratorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SpeakerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Speak", Handler: speakHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hypnotone/narration/v1/narrator.proto",
}

func speakHandler(srv interface{}, ctx context.Context, dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor) (interface{}, error) {

	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req interface{}) (interface{}, error) {
		var sessionID string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(SessionIDHeader); len(v) > 0 {
				sessionID = v[0]
			}
		}
		text := req.(*wrapperspb.StringValue).GetValue()
		if err := srv.(SpeakerServer).Speak(ctx, sessionID, text); err != nil {
			return nil, err
		}
		return &emptypb.Empty{}, nil
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: speakMethod}
	return interceptor(ctx, in, info, call)
}

// LogNarrator logs narration text instead of speaking it. Used when no TTS
// service is configured.
type LogNarrator struct {
	Logger *zap.Logger
}

// Narrate implements the playback narrator contract.
func (n LogNarrator) Narrate(_ context.Context, sessionID, text string) error {
	n.Logger.Info("narration", zap.String("session", sessionID), zap.String("text", text))
	return nil
}
