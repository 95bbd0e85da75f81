package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// rateLimitExceeded counts HTTP 429 events from the rate limit middleware.
	// Labels:
	// - endpoint: short name like "certificates:generate"
	// - source:   "ip" or "key"
	rateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "certify",
			Subsystem: "http",
			Name:      "rate_limit_exceeded_total",
			Help:      "Number of requests rejected due to rate limiting (HTTP 429)",
		},
		[]string{"endpoint", "source"},
	)

	// certificatesGenerated counts persisted certificates.
	// Labels:
	// - source: "batch" or "api"
	certificatesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "certify",
			Subsystem: "certificates",
			Name:      "generated_total",
			Help:      "Certificates rendered, stored and persisted.",
		},
		[]string{"source"},
	)

	// certificateFailures counts records that did not produce a certificate.
	// Labels:
	// - reason: "background" | "render" | "storage" | "tokens" | "persist"
	certificateFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "certify",
			Subsystem: "certificates",
			Name:      "failures_total",
			Help:      "Records that failed certificate generation, by reason.",
		},
		[]string{"reason"},
	)

	renderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "certify",
			Subsystem: "render",
			Name:      "duration_seconds",
			Help:      "Time spent rasterizing one certificate.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// renderElementSkipped counts signature/QR elements omitted from a render.
	renderElementSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "certify",
			Subsystem: "render",
			Name:      "element_skipped_total",
			Help:      "Template elements skipped because they could not be loaded or generated.",
		},
		[]string{"kind"},
	)

	tokensDebited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "certify",
			Subsystem: "tokens",
			Name:      "debited_total",
			Help:      "Tokens debited for generated certificates.",
		},
	)

	// deliveryAttempts counts email delivery attempts.
	// Labels:
	// - status: "sent" | "retry" | "failed"
	deliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "certify",
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Email delivery attempts by outcome.",
		},
		[]string{"status"},
	)

	bouncesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "certify",
			Subsystem: "bounces",
			Name:      "recorded_total",
			Help:      "Bounce events ingested from the email provider.",
		},
	)
)

// IncRateLimitExceeded increments the 429 counter for the given endpoint and source.
func IncRateLimitExceeded(endpoint, source string) {
	rateLimitExceeded.WithLabelValues(orUnknown(endpoint), orUnknown(source)).Inc()
}

// IncCertificateGenerated increments the generated counter for a source.
func IncCertificateGenerated(source string) {
	certificatesGenerated.WithLabelValues(orUnknown(source)).Inc()
}

// IncCertificateFailure increments the failure counter for a reason.
func IncCertificateFailure(reason string) {
	certificateFailures.WithLabelValues(orUnknown(reason)).Inc()
}

// ObserveRender records one rasterization in seconds.
func ObserveRender(seconds float64) { renderDuration.Observe(seconds) }

// IncRenderElementSkipped counts a skipped "signature" or "qr" element.
func IncRenderElementSkipped(kind string) {
	renderElementSkipped.WithLabelValues(orUnknown(kind)).Inc()
}

// AddTokensDebited adds n to the debited counter.
func AddTokensDebited(n int) { tokensDebited.Add(float64(n)) }

// IncDeliveryAttempt counts a delivery attempt outcome.
func IncDeliveryAttempt(status string) {
	deliveryAttempts.WithLabelValues(orUnknown(status)).Inc()
}

// IncBounceRecorded counts an ingested bounce.
func IncBounceRecorded() { bouncesRecorded.Inc() }

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
