package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SubmissionsTotal          prometheus.Counter
	DecryptionRequestsTotal   prometheus.Counter
	DecryptionsCompletedTotal prometheus.Counter
	IntegrityFailuresTotal    *prometheus.CounterVec
}

// New registers the ledger counters with reg. Services accept a nil
// *Metrics, so tests that don't care about metrics pass nothing.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SubmissionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cipherpoll_submissions_total",
			Help: "Encrypted submissions accepted into open batches",
		}),
		DecryptionRequestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cipherpoll_decryption_requests_total",
			Help: "Decryption requests issued to the oracle",
		}),
		DecryptionsCompletedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cipherpoll_decryptions_completed_total",
			Help: "Decryption callbacks verified and finalized",
		}),
		IntegrityFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cipherpoll_integrity_failures_total",
			Help: "Callback integrity guard failures by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) IncSubmissions() {
	if m == nil {
		return
	}
	m.SubmissionsTotal.Inc()
}

func (m *Metrics) IncDecryptionRequests() {
	if m == nil {
		return
	}
	m.DecryptionRequestsTotal.Inc()
}

func (m *Metrics) IncDecryptionsCompleted() {
	if m == nil {
		return
	}
	m.DecryptionsCompletedTotal.Inc()
}

func (m *Metrics) IncIntegrityFailure(reason string) {
	if m == nil {
		return
	}
	m.IntegrityFailuresTotal.WithLabelValues(reason).Inc()
}
