package server

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the service name reported next to the overall "" entry.
const HealthService = "tonight.api"

// Health exposes grpc.health.v1.Health for orchestrators. It starts out
// NOT_SERVING until SetServing(true).
type Health struct {
	status *health.Server
	grpc   *grpc.Server
}

func NewHealth() *Health {
	hs := health.NewServer()
	g := grpc.NewServer()
	healthpb.RegisterHealthServer(g, hs)

	h := &Health{status: hs, grpc: g}
	h.SetServing(false)
	return h
}

func (h *Health) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.status.SetServingStatus("", st)
	h.status.SetServingStatus(HealthService, st)
}

func (h *Health) Serve(ln net.Listener) error {
	return h.grpc.Serve(ln)
}

// Stop flips everything to NOT_SERVING and closes open Watch streams.
func (h *Health) Stop() {
	h.status.Shutdown()
	h.grpc.Stop()
}
