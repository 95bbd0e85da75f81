package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// dependencyUp is 1 when the last ping to a dependency succeeded, else 0.
	// Labels:
	// - dependency: "db" | "redis" | "queue"
	dependencyUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "certify",
		Subsystem: "health",
		Name:      "dependency_up",
		Help:      "Dependency availability (1=up, 0=down).",
	}, []string{"dependency"})

	dependencyPingSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "certify",
		Subsystem: "health",
		Name:      "dependency_ping_seconds",
		Help:      "Dependency ping latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"dependency"})
)

// Probe runs ping, records its latency and availability under the
// dependency label, and reports whether it succeeded.
func Probe(ctx context.Context, dependency string, ping func(context.Context) error) bool {
	start := time.Now()
	err := ping(ctx)
	dependencyPingSeconds.WithLabelValues(dependency).Observe(time.Since(start).Seconds())
	if err != nil {
		dependencyUp.WithLabelValues(dependency).Set(0)
		return false
	}
	dependencyUp.WithLabelValues(dependency).Set(1)
	return true
}
