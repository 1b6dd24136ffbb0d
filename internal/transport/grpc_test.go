package transport

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/nacos-go/nacos-client-go/internal/nacospb"
)

type echoServer struct {
	nacospb.UnimplementedRequestServiceServer
	requests atomic.Int64
}

func (s *echoServer) Request(ctx context.Context, in *nacospb.Payload) (*nacospb.Payload, error) {
	s.requests.Add(1)
	return &nacospb.Payload{Metadata: nacospb.Metadata{Type: in.Metadata.Type}, Body: in.Body}, nil
}

func (s *echoServer) RequestBiStream(stream grpc.BidiStreamingServer[nacospb.Payload, nacospb.Payload]) error {
	for {
		in, err := stream.Recv()
		if err != nil {
			return nil
		}
		switch in.Metadata.Type {
		case nacospb.TypeConnectionSetupRequest:
			continue
		case nacospb.TypeServerCheckRequest:
			if err := stream.Send(&nacospb.Payload{Metadata: nacospb.Metadata{Type: nacospb.TypeServerCheckResponse}}); err != nil {
				return err
			}
		}
	}
}

func dialBufconn(t *testing.T, srv *echoServer) (addrDialer func(context.Context, string) (net.Conn, error), stop func()) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	gs := grpc.NewServer()
	nacospb.RegisterRequestServiceServer(gs, srv)
	go gs.Serve(lis)
	return func(ctx context.Context, _ string) (net.Conn, error) { return lis.Dial() }, gs.Stop
}

func TestGRPCUnaryRequest(t *testing.T) {
	srv := &echoServer{}
	dialer, stop := dialBufconn(t, srv)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g, err := NewGRPC(ctx, Config{
		Addr:     "bufnet",
		ClientIP: "127.0.0.1",
		DialOpts: []grpc.DialOption{grpc.WithContextDialer(dialer), grpc.WithInsecure()},
	})
	if err != nil {
		t.Fatalf("NewGRPC: %v", err)
	}
	defer g.Close()

	var out nacospb.ConfigQueryResponse
	err = g.Request(ctx, nacospb.TypeConfigQueryRequest, &nacospb.ConfigQueryRequest{DataID: "a"}, &out)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if srv.requests.Load() < 1 {
		t.Fatalf("expected server to observe at least one request")
	}
}

func TestGRPCNoNotificationWithoutServerPush(t *testing.T) {
	srv := &echoServer{}
	dialer, stop := dialBufconn(t, srv)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	notified := make(chan *nacospb.Payload, 1)
	g, err := NewGRPC(ctx, Config{
		Addr:     "bufnet",
		ClientIP: "127.0.0.1",
		DialOpts: []grpc.DialOption{grpc.WithContextDialer(dialer), grpc.WithInsecure()},
		OnNotify: func(ctx context.Context, p *nacospb.Payload) *nacospb.AckResponse {
			notified <- p
			return &nacospb.AckResponse{RequestID: "r1", Success: true}
		},
	})
	if err != nil {
		t.Fatalf("NewGRPC: %v", err)
	}
	defer g.Close()

	// the fake server in this test never pushes a notification on its own,
	// so OnNotify must not be invoked.
	select {
	case <-notified:
		t.Fatal("unexpected notification")
	case <-time.After(200 * time.Millisecond):
	}
}
