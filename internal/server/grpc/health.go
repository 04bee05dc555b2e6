// Package grpcserver runs the ops listener: gRPC health checks backed by dependency pings.
package grpcserver

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported for roomd as a whole.
const ServiceName = "roomie.Roomd"

// PingFunc checks one dependency.
type PingFunc func(ctx context.Context) error

// Check is a named dependency probe. Each name is also a health service of its own.
type Check struct {
	Name string
	Ping PingFunc
}

// Options tune the ops server.
type Options struct {
	Reflection  bool
	Creds       credentials.TransportCredentials
	PingTimeout time.Duration
}

// Ops serves grpc.health.v1 and flips serving status from periodic pings.
type Ops struct {
	srv    *grpc.Server
	hs     *health.Server
	checks []Check
	log    *zap.Logger
	opts   Options

	mu   sync.Mutex
	last map[string]bool
}

// New builds the ops server. Every status starts NOT_SERVING until the first probe.
func New(log *zap.Logger, opts Options, checks ...Check) *Ops {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 2 * time.Second
	}
	sopts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)),
		grpc.ChainStreamInterceptor(RecoverStream(log), LoggingStream(log)),
	}
	if opts.Creds != nil {
		sopts = append(sopts, grpc.Creds(opts.Creds))
	}
	o := &Ops{
		srv:    grpc.NewServer(sopts...),
		hs:     health.NewServer(),
		checks: checks,
		log:    log,
		opts:   opts,
		last:   make(map[string]bool),
	}
	healthpb.RegisterHealthServer(o.srv, o.hs)
	if opts.Reflection {
		reflection.Register(o.srv)
	}
	o.hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	o.hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	for _, c := range checks {
		o.hs.SetServingStatus(c.Name, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return o
}

// Probe pings every dependency once and updates the statuses. It reports whether all passed.
func (o *Ops) Probe(ctx context.Context) bool {
	all := true
	for _, c := range o.checks {
		pctx, cancel := context.WithTimeout(ctx, o.opts.PingTimeout)
		err := c.Ping(pctx)
		cancel()
		ok := err == nil
		all = all && ok
		o.set(c.Name, ok, err)
	}
	o.set("", all, nil)
	o.set(ServiceName, all, nil)
	return all
}

func (o *Ops) set(name string, ok bool, err error) {
	o.mu.Lock()
	prev, seen := o.last[name]
	o.last[name] = ok
	o.mu.Unlock()

	st := healthpb.HealthCheckResponse_SERVING
	if !ok {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	o.hs.SetServingStatus(name, st)
	if name != "" && (!seen || prev != ok) {
		if ok {
			o.log.Info("dependency healthy", zap.String("check", name))
		} else {
			o.log.Warn("dependency unhealthy", zap.String("check", name), zap.Error(err))
		}
	}
}

// Run probes immediately and then every interval until ctx ends.
func (o *Ops) Run(ctx context.Context, every time.Duration) {
	o.Probe(ctx)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			o.Probe(ctx)
		}
	}
}

// Serve accepts connections on lis until Stop.
func (o *Ops) Serve(lis net.Listener) error { return o.srv.Serve(lis) }

// Stop marks everything NOT_SERVING and stops gracefully, forcing after timeout.
func (o *Ops) Stop(timeout time.Duration) {
	o.hs.Shutdown()
	done := make(chan struct{})
	go func() {
		o.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		o.srv.Stop()
	}
}
