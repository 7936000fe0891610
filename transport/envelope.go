package transport

import (
	"context"
	"io"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// requestIDMetadataKey carries a per-call correlation id (spec is silent
// on request tracing; every real M2M deployment wants one for matching
// client-side timeouts to server-side logs).
const requestIDMetadataKey = "x-trace2e-request-id"

// invokeJSON marshals req to JSON, wraps it in a wrapperspb.BytesValue (a
// real google.golang.org/protobuf message, so grpc's default codec needs
// no customization), sends it over conn at fullMethod, and unmarshals the
// reply envelope's payload into resp.
func invokeJSON(ctx context.Context, conn *grpc.ClientConn, fullMethod string, req, resp interface{}) error {
	payload, err := marshalJSON(req)
	if err != nil {
		return err
	}
	ctx = metadata.AppendToOutgoingContext(ctx, requestIDMetadataKey, uuid.NewString())
	reply := new(wrapperspb.BytesValue)
	if err := conn.Invoke(ctx, fullMethod, &wrapperspb.BytesValue{Value: payload}, reply); err != nil {
		return err
	}
	return unmarshalJSON(reply.GetValue(), resp)
}

// requestIDFromContext reads the correlation id a client attached via
// invokeJSON, for server-side log correlation.
func requestIDFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(requestIDMetadataKey); len(v) > 0 {
		return v[0]
	}
	return ""
}

// jsonUnaryHandler adapts a typed (ctx, *Req) (*Resp, error) server method
// into the grpc.methodHandler shape a hand-rolled grpc.ServiceDesc needs,
// decoding the request envelope and encoding the response envelope so the
// rest of the service implementation never touches wrapperspb directly.
func jsonUnaryHandler(newReq func() interface{}, call func(ctx context.Context, req interface{}) (interface{}, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		envelope := new(wrapperspb.BytesValue)
		if err := dec(envelope); err != nil {
			return nil, err
		}
		req := newReq()
		if err := unmarshalJSON(envelope.GetValue(), req); err != nil {
			return nil, err
		}

		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			resp, err := call(ctx, req)
			if err != nil {
				return nil, err
			}
			payload, err := marshalJSON(resp)
			if err != nil {
				return nil, err
			}
			return &wrapperspb.BytesValue{Value: payload}, nil
		}
		if interceptor == nil {
			return handler(ctx, req)
		}
		return interceptor(ctx, req, nil, handler)
	}
}

// jsonServerStreamHandler adapts a typed (ctx, *Req, send) error server
// method into a grpc.StreamHandler, for the one server-streaming RPC this
// package needs (O2M's enforce_consent ownership subscription, spec §6).
func jsonServerStreamHandler(newReq func() interface{}, call func(ctx context.Context, req interface{}, send func(interface{}) error) error) func(srv interface{}, stream grpc.ServerStream) error {
	return func(srv interface{}, stream grpc.ServerStream) error {
		envelope := new(wrapperspb.BytesValue)
		if err := stream.RecvMsg(envelope); err != nil {
			return err
		}
		req := newReq()
		if err := unmarshalJSON(envelope.GetValue(), req); err != nil {
			return err
		}
		send := func(v interface{}) error {
			payload, err := marshalJSON(v)
			if err != nil {
				return err
			}
			return stream.SendMsg(&wrapperspb.BytesValue{Value: payload})
		}
		return call(stream.Context(), req, send)
	}
}

// recvStreamJSON opens a server-streaming RPC at fullMethod, sends req,
// and invokes onItem for every decoded response item until the stream
// closes. Used by clients of the O2M surface (an operator tool, not
// exercised by this repo's own code, which never calls O2M).
func recvStreamJSON(ctx context.Context, conn *grpc.ClientConn, fullMethod string, req interface{}, newItem func() interface{}, onItem func(interface{}) error) error {
	cs, err := conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, fullMethod)
	if err != nil {
		return err
	}
	payload, err := marshalJSON(req)
	if err != nil {
		return err
	}
	if err := cs.SendMsg(&wrapperspb.BytesValue{Value: payload}); err != nil {
		return err
	}
	if err := cs.CloseSend(); err != nil {
		return err
	}
	for {
		envelope := new(wrapperspb.BytesValue)
		if err := cs.RecvMsg(envelope); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		item := newItem()
		if err := unmarshalJSON(envelope.GetValue(), item); err != nil {
			return err
		}
		if err := onItem(item); err != nil {
			return err
		}
	}
}
