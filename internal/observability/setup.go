package observability

import (
	"context"
	"net/http"

	"github.com/honeynil/JobEscrowService/internal/infrastructure/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Setup initializes logs, metrics and traces and returns the tracer shutdown func and the metrics
// handler.
func Setup(ctx context.Context, serviceName, logLevel, otlpEndpoint string) (func(context.Context) error, http.Handler) {
	observability.InitLogger(logLevel)
	observability.InitMetrics(prometheus.DefaultRegisterer)
	tracerShutdown := observability.InitTracing(ctx, serviceName, otlpEndpoint)
	return tracerShutdown, promhttp.Handler()
}
