package grpc

import (
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

const integrationServicePrefix = "gateway.integration."

// HealthReporter publishes per-integration health on the standard grpc.health.v1 service.
type HealthReporter struct {
	server *health.Server
}

func NewHealthReporter(server *health.Server) *HealthReporter {
	return &HealthReporter{server: server}
}

func IntegrationServiceName(providerCode string) string {
	return integrationServicePrefix + providerCode
}

func (r *HealthReporter) SetIntegrationStatus(providerCode string, status entity.HealthStatus) {
	r.server.SetServingStatus(IntegrationServiceName(providerCode), servingStatus(status))
}

// degraded integrations still accept traffic
func servingStatus(status entity.HealthStatus) healthpb.HealthCheckResponse_ServingStatus {
	switch status {
	case entity.HealthHealthy, entity.HealthDegraded:
		return healthpb.HealthCheckResponse_SERVING
	case entity.HealthDown:
		return healthpb.HealthCheckResponse_NOT_SERVING
	default:
		return healthpb.HealthCheckResponse_UNKNOWN
	}
}
