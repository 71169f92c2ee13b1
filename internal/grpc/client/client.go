// Package client checks the health of a running file manager over gRPC.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

var ErrNotServing = errors.New("server not serving")

type GrpcConfig struct {
	Address             string
	UseTLS              bool
	InsecureSkipVerify  bool
	Timeout             time.Duration
	KeepAlive           bool
	MaxRetries          int
	KeepAliveTime       time.Duration
	KeepAliveTimeout    time.Duration
	PermitWithoutStream bool
}

type Client interface {
	ClientConn() *grpc.ClientConn
	CheckServerHealth(ctx context.Context) error
	WaitForServing(ctx context.Context) error
	Close() error
}

type client struct {
	conn    *grpc.ClientConn
	config  *GrpcConfig
	closing bool
}

var (
	grpcNewClient         = grpc.NewClient
	healthNewHealthClient = grpc_health_v1.NewHealthClient
	initialBackoff        = time.Second
)

const maxBackoff = 30 * time.Second

func DefaultConfig() *GrpcConfig {
	return &GrpcConfig{
		Address:             "localhost:50051",
		UseTLS:              false,
		InsecureSkipVerify:  false,
		Timeout:             10 * time.Second,
		KeepAlive:           true,
		MaxRetries:          3,
		KeepAliveTime:       2 * time.Minute,
		KeepAliveTimeout:    10 * time.Second,
		PermitWithoutStream: false,
	}
}

func New(config *GrpcConfig) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	} else {
		defaults := DefaultConfig()
		if config.Address == "" {
			config.Address = defaults.Address
		}
		if config.Timeout == 0 {
			config.Timeout = defaults.Timeout
		}
		if config.MaxRetries == 0 {
			config.MaxRetries = defaults.MaxRetries
		}
		if config.KeepAliveTime == 0 {
			config.KeepAliveTime = defaults.KeepAliveTime
		}
		if config.KeepAliveTimeout == 0 {
			config.KeepAliveTimeout = defaults.KeepAliveTimeout
		}
	}

	var opts []grpc.DialOption

	if config.UseTLS {
		tlsConfig := &tls.Config{
			InsecureSkipVerify: config.InsecureSkipVerify,
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	if config.KeepAlive {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                config.KeepAliveTime,
			Timeout:             config.KeepAliveTimeout,
			PermitWithoutStream: config.PermitWithoutStream,
		}))
	}

	conn, err := grpcNewClient(config.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gRPC server at %s: %w", config.Address, err)
	}

	return &client{
		conn:   conn,
		config: config,
	}, nil
}

func (c *client) ClientConn() *grpc.ClientConn {
	return c.conn
}

func (c *client) Close() error {
	if c.conn != nil {
		log.Debug().Str("address", c.config.Address).Msg("Closing gRPC connection")
		c.closing = true
		return c.conn.Close()
	}
	return nil
}

func (c *client) CheckServerHealth(ctx context.Context) error {
	if c.config != nil && c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	healthClient := healthNewHealthClient(c.ClientConn())
	resp, err := healthClient.Check(ctx, &grpc_health_v1.HealthCheckRequest{
		Service: "",
	})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %v", ErrNotServing, resp.GetStatus())
	}
	return nil
}

// WaitForServing retries the health check with exponential backoff while the
// server is unreachable or not yet serving, up to MaxRetries extra attempts.
func (c *client) WaitForServing(ctx context.Context) error {
	retries := 0
	if c.config != nil {
		retries = c.config.MaxRetries
	}

	backoff := initialBackoff
	for attempt := 0; ; attempt++ {
		err := c.CheckServerHealth(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNotServing) && !c.isConnectionError(err) {
			return err
		}
		if attempt >= retries {
			return err
		}

		log.Debug().Err(err).Dur("backoff", backoff).Msg("Server not ready, retrying")
		if waitErr := c.wait(ctx, backoff); waitErr != nil {
			return waitErr
		}
		c.growBackoff(&backoff)
	}
}

func (c *client) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *client) growBackoff(backoff *time.Duration) {
	*backoff *= 2
	if *backoff > maxBackoff {
		*backoff = maxBackoff
	}
}

func (c *client) isConnectionError(err error) bool {
	if c.closing {
		return false
	}
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.Canceled, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
