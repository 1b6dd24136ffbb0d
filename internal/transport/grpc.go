package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"reflect"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nacos-go/nacos-client-go/internal/errorsx"
	"github.com/nacos-go/nacos-client-go/internal/nacospb"
	"github.com/nacos-go/nacos-client-go/internal/util"
)

// checkInterval is the gRPC stream's keepalive period (spec §4.4).
const checkInterval = 5 * time.Second

// maxCheckFailures is how many consecutive ServerCheckRequest failures
// trigger failover (spec §4.4).
const maxCheckFailures = 3

// NotifyHandler processes one server-initiated notification
// (ConfigChangeNotifyRequest / NotifySubscriberRequest) and returns the ACK
// to send back (spec §4.4, §6).
type NotifyHandler func(ctx context.Context, p *nacospb.Payload) *nacospb.AckResponse

// GRPC is a channel to one active host, connected when it is created by
// NewGRPC, plus its bidi
// notification stream. One GRPC is owned by the connection manager and
// replaced wholesale on failover (spec §4.4, §4.5), the same lifecycle
// internal/agent/exporter/grpc_exporter.go uses for its own stream.
type GRPC struct {
	addr      string // "ip:grpc_port"
	clientIP  string
	tokens    TokenSource
	onNotify  NotifyHandler
	onFailure func(err error) // invoked after maxCheckFailures consecutive keepalive failures
	log       *zap.Logger
	retry     backoff.BackOff

	mu     sync.Mutex
	conn   *grpc.ClientConn
	client nacospb.RequestServiceClient
	stream grpc.BidiStreamingClient[nacospb.Payload, nacospb.Payload]

	closing chan struct{}
	closed  bool
}

// Config parameterises a GRPC transport.
type Config struct {
	Addr      string
	ClientIP  string
	Tokens    TokenSource
	OnNotify  NotifyHandler
	OnFailure func(err error)
	Log       *zap.Logger
	DialOpts  []grpc.DialOption
}

// NewGRPC dials addr and opens the bidi stream. The call blocks until the
// first successful handshake (spec §4.4).
func NewGRPC(ctx context.Context, cfg Config) (*GRPC, error) {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 30 * time.Second // give up and let the conn manager fail over to another host

	g := &GRPC{
		addr:      cfg.Addr,
		clientIP:  cfg.ClientIP,
		tokens:    cfg.Tokens,
		onNotify:  cfg.OnNotify,
		onFailure: cfg.OnFailure,
		log:       log,
		retry:     bo,
		closing:   make(chan struct{}),
	}
	if err := g.connect(ctx, cfg.DialOpts); err != nil {
		return nil, err
	}
	go g.keepaliveLoop()
	go g.readLoop()
	return g, nil
}

func (g *GRPC) connect(ctx context.Context, dialOpts []grpc.DialOption) error {
	opts := append([]grpc.DialOption{}, dialOpts...)
	if len(dialOpts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	opts = append(opts, grpc.WithBlock())

	conn, err := grpc.DialContext(ctx, g.addr, opts...)
	if err != nil {
		return errorsx.New(errorsx.KindTransport, "grpc.Dial", err)
	}
	client := nacospb.NewRequestServiceClient(conn)

	stream, err := client.RequestBiStream(context.Background())
	if err != nil {
		_ = conn.Close()
		return errorsx.New(errorsx.KindTransport, "RequestBiStream", err)
	}

	setup := &nacospb.ConnectionSetupRequest{
		ClientVersion: "nacos-go-client/1.0",
		Labels:        map[string]string{"source": "sdk-go"},
	}
	if err := sendTyped(stream, nacospb.TypeConnectionSetupRequest, g.clientIP, setup); err != nil {
		_ = conn.Close()
		return errorsx.New(errorsx.KindTransport, "ConnectionSetupRequest", err)
	}

	g.mu.Lock()
	g.conn = conn
	g.client = client
	g.stream = stream
	g.mu.Unlock()
	return nil
}

// reconnect tears down the current stream/channel and retries connect()
// respecting g.retry, stopping early if the GRPC is closed or the policy's
// MaxElapsedTime is exhausted.
func (g *GRPC) reconnect(ctx context.Context) error {
	g.mu.Lock()
	if g.stream != nil {
		_ = g.stream.CloseSend()
		g.stream = nil
	}
	if g.conn != nil {
		_ = g.conn.Close()
		g.conn = nil
	}
	g.mu.Unlock()

	g.retry.Reset()
	for {
		next := g.retry.NextBackOff()
		if next == backoff.Stop {
			return context.DeadlineExceeded
		}
		select {
		case <-time.After(next):
		case <-g.closing:
			return context.Canceled
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := g.connect(ctx, nil); err == nil {
			return nil
		}
	}
}

// Close terminates the stream and underlying channel.
func (g *GRPC) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	conn := g.conn
	stream := g.stream
	g.mu.Unlock()

	close(g.closing)
	if stream != nil {
		_ = stream.CloseSend()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Request issues a unary call carrying typ/body and decodes the response
// into out (spec §4.5 Dispatch).
func (g *GRPC) Request(ctx context.Context, typ string, body any, out any) error {
	g.mu.Lock()
	client := g.client
	g.mu.Unlock()
	if client == nil {
		return errorsx.New(errorsx.KindTransport, typ, context.Canceled)
	}

	token := ""
	if g.tokens != nil {
		if t, err := g.tokens.GetToken(ctx); err == nil {
			token = t
		}
	}

	payload, err := buildPayload(typ, g.clientIP, token, body)
	if err != nil {
		return errorsx.New(errorsx.KindProtocol, typ, err)
	}

	resp, err := client.Request(ctx, payload)
	if err != nil {
		return errorsx.New(errorsx.KindTransport, typ, err)
	}
	if out != nil {
		if err := decodeBody(resp, out); err != nil {
			return errorsx.New(errorsx.KindProtocol, typ, err)
		}
	}
	return nil
}

// keepaliveLoop sends ServerCheckRequest every 5s; three consecutive
// failures trigger OnFailure (spec §4.4).
func (g *GRPC) keepaliveLoop() {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-g.closing:
			return
		case <-ticker.C:
			g.mu.Lock()
			stream := g.stream
			g.mu.Unlock()
			if stream == nil {
				continue
			}
			err := sendTyped(stream, nacospb.TypeServerCheckRequest, g.clientIP, &nacospb.ServerCheckRequest{})
			if err != nil {
				failures++
				g.log.Warn("grpc keepalive send failed", zap.Int("consecutive_failures", failures), zap.Error(err))
				if failures >= maxCheckFailures {
					g.log.Warn("grpc keepalive failed repeatedly, failing over", zap.Error(err))
					if g.onFailure != nil {
						g.onFailure(err)
					}
					return
				}
				continue
			}
			failures = 0
		}
	}
}

// readLoop pumps inbound notifications and dispatches them to onNotify,
// replying with the returned ACK (spec §4.4).
func (g *GRPC) readLoop() {
	for {
		g.mu.Lock()
		stream := g.stream
		g.mu.Unlock()
		if stream == nil {
			select {
			case <-g.closing:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		in, err := stream.Recv()
		if err != nil {
			select {
			case <-g.closing:
				return
			default:
			}
			g.log.Warn("grpc stream recv failed, reconnecting", zap.Error(err))
			if rerr := g.reconnect(context.Background()); rerr != nil {
				g.log.Warn("grpc reconnect exhausted, failing over", zap.Error(rerr))
				if g.onFailure != nil {
					g.onFailure(err)
				}
				return
			}
			continue
		}

		if in.Metadata.Type == nacospb.TypeServerCheckResponse || in.Metadata.Type == nacospb.TypeAckResponse {
			continue // keepalive/request responses are handled by Request's own call
		}

		if g.onNotify == nil {
			continue
		}
		ack := g.onNotify(context.Background(), in)
		if ack == nil {
			continue
		}
		_ = sendTyped(stream, nacospb.TypeAckResponse, g.clientIP, ack)
	}
}

func sendTyped(stream grpc.BidiStreamingClient[nacospb.Payload, nacospb.Payload], typ, clientIP string, body any) error {
	p, err := buildPayload(typ, clientIP, "", body)
	if err != nil {
		return err
	}
	return stream.Send(p)
}

// stampRequestID fills a zero-value "RequestID" string field on body with a
// fresh ULID, if one exists, so every outbound request/notification can be
// correlated with its ACK (spec §6). Generated-proto-shaped request types
// all carry this field with the same JSON tag but have no common interface,
// so reflection is the only way to stamp it from one call site.
func stampRequestID(body any) {
	if body == nil {
		return
	}
	v := reflect.ValueOf(body)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return
	}
	f := v.FieldByName("RequestID")
	if !f.IsValid() || f.Kind() != reflect.String || !f.CanSet() || f.String() != "" {
		return
	}
	if id, err := util.New(); err == nil {
		f.SetString(id)
	}
}

func marshalBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	return json.Marshal(body)
}

func decodeBody(p *nacospb.Payload, out any) error {
	if len(p.Body) == 0 {
		return nil
	}
	return json.Unmarshal(p.Body, out)
}

func buildPayload(typ, clientIP, token string, body any) (*nacospb.Payload, error) {
	headers := map[string]string{}
	if token != "" {
		headers["accessToken"] = token
	}
	stampRequestID(body)
	raw, err := marshalBody(body)
	if err != nil {
		return nil, err
	}
	return &nacospb.Payload{
		Metadata: nacospb.Metadata{Type: typ, ClientIP: clientIP, Headers: headers},
		Body:     raw,
	}, nil
}
