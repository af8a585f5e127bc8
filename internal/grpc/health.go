package grpc

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Check pings one dependency. A nil error means it is usable.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthMonitor keeps the gRPC health status of the service in sync with its
// dependencies. The overall status is NOT_SERVING while any check fails.
type HealthMonitor struct {
	server   *health.Server
	service  string
	checks   []Check
	interval time.Duration
	log      logrus.FieldLogger

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewHealthMonitor(service string, interval time.Duration, log logrus.FieldLogger, checks ...Check) *HealthMonitor {
	return &HealthMonitor{
		server:   health.NewServer(),
		service:  service,
		checks:   checks,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
	}
}

// NewServer returns a gRPC server exposing the health service and reflection.
func (m *HealthMonitor) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	grpc_health_v1.RegisterHealthServer(s, m.server)
	reflection.Register(s)
	return s
}

// CheckNow runs every check once and publishes the result.
func (m *HealthMonitor) CheckNow(ctx context.Context) bool {
	healthy := true
	for _, c := range m.checks {
		if err := c.Ping(ctx); err != nil {
			healthy = false
			m.log.WithField("check", c.Name).WithError(err).Warn("health check failed")
		}
	}

	status := grpc_health_v1.HealthCheckResponse_SERVING
	if !healthy {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	m.server.SetServingStatus("", status)
	m.server.SetServingStatus(m.service, status)
	return healthy
}

func (m *HealthMonitor) Start() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	m.CheckNow(ctx)
	cancel()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				m.CheckNow(ctx)
				cancel()
			}
		}
	}()
}

// Shutdown marks the service NOT_SERVING so load balancers drain it, then
// stops probing.
func (m *HealthMonitor) Shutdown() {
	m.server.Shutdown()
	close(m.stop)
	m.wg.Wait()
}

// Server exposes the underlying health server.
func (m *HealthMonitor) Server() grpc_health_v1.HealthServer {
	return m.server
}
