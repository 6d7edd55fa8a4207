// Package flight checks that a cache server's Arrow Flight endpoint answers.
package flight

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/TFMV/cachewatch/pkg/errors"
	"github.com/TFMV/cachewatch/pkg/repositories"
)

// DefaultAddress is the Flight port a local cache server listens on.
const DefaultAddress = "localhost:15214"

const defaultTimeout = 3 * time.Second

type probe struct {
	address string
	timeout time.Duration
	conn    *grpc.ClientConn
	client  flight.Client
	logger  zerolog.Logger
	now     func() time.Time
}

// NewProbe creates a Flight probe for address. The connection is established
// lazily on the first Probe call.
func NewProbe(address string, timeout time.Duration, logger zerolog.Logger) (repositories.FlightProbe, error) {
	address = strings.TrimSpace(address)
	for _, prefix := range []string{"grpc+tcp://", "grpc://"} {
		address = strings.TrimPrefix(address, prefix)
	}
	if address == "" {
		return nil, errors.New(errors.CodeInvalidRequest, "flight address is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	p := &probe{
		address: address,
		timeout: timeout,
		logger:  logger.With().Str("component", "flight_probe").Str("address", address).Logger(),
		now:     time.Now,
	}

	conn, err := grpc.NewClient(address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainStreamInterceptor(p.loggingInterceptor),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidRequest, "invalid flight address").
			WithDetail("address", address)
	}

	p.conn = conn
	p.client = flight.NewClientFromConn(conn, nil)
	return p, nil
}

// Probe lists the server's Flight actions. An unreachable server is reported
// in the result; only a canceled parent context is returned as an error.
func (p *probe) Probe(ctx context.Context) (*repositories.ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := p.now()
	actions, err := p.listActions(ctx)
	result := &repositories.ProbeResult{
		Address:   p.address,
		Latency:   time.Since(start),
		Actions:   actions,
		CheckedAt: start,
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr == context.Canceled {
			return nil, errors.Wrap(ctxErr, errors.CodeCanceled, "flight probe canceled")
		}
		result.Error = err.Error()
		p.logger.Warn().Err(err).Msg("Flight endpoint unreachable")
		return result, nil
	}

	result.Reachable = true
	p.logger.Debug().Dur("latency", result.Latency).Int("actions", len(actions)).Msg("Flight endpoint reachable")
	return result, nil
}

func (p *probe) listActions(ctx context.Context) ([]string, error) {
	stream, err := p.client.ListActions(ctx, &flight.Empty{})
	if err != nil {
		return nil, err
	}

	var actions []string
	for {
		action, err := stream.Recv()
		if err == io.EOF {
			return actions, nil
		}
		if err != nil {
			return nil, err
		}
		actions = append(actions, action.GetType())
	}
}

func (p *probe) loggingInterceptor(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	p.logger.Debug().Str("method", method).Msg("Flight call")
	return streamer(ctx, desc, cc, method, opts...)
}

func (p *probe) Close() error {
	return p.conn.Close()
}
