// ABOUTME: Prometheus metrics for the auth gateway
// ABOUTME: Counts challenge lifecycle events and per-request auth outcomes

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector gathers gateway counters and registers them with a
// Prometheus registry. It satisfies challenge.Recorder and
// auth.OutcomeRecorder.
type Collector struct {
	otpRequested      prometheus.Counter
	otpDeliveryFailed prometheus.Counter
	otpRedeemed       *prometheus.CounterVec
	authRequests      *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		otpRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_otp_requested_total",
			Help: "Total OTP challenges issued.",
		}),
		otpDeliveryFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_otp_delivery_failed_total",
			Help: "Total OTP email deliveries that failed.",
		}),
		otpRedeemed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_otp_redeemed_total",
			Help: "OTP redemption attempts by outcome.",
		}, []string{"outcome"}),
		authRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_auth_requests_total",
			Help: "Gated requests by authentication outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.otpRequested,
		c.otpDeliveryFailed,
		c.otpRedeemed,
		c.authRequests,
	)

	return c
}

func (c *Collector) RecordOTPRequested() {
	c.otpRequested.Inc()
}

func (c *Collector) RecordOTPDeliveryFailed() {
	c.otpDeliveryFailed.Inc()
}

func (c *Collector) RecordOTPRedemption(success bool) {
	outcome := "rejected"
	if success {
		outcome = "redeemed"
	}
	c.otpRedeemed.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordAuthOutcome(outcome string) {
	c.authRequests.WithLabelValues(outcome).Inc()
}

// Handler returns the HTTP handler that serves the scrape endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
