package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification engine.
type Metrics struct {
	// Engine outcomes by operation ("join", "message", "response", "expiry", "mass_verify", "forget")
	Outcomes *prometheus.CounterVec

	ChallengesIssued  prometheus.Counter
	ChallengesPassed  prometheus.Counter
	ChallengesExpired prometheus.Counter
	// Button presses by someone other than the challenged member
	ChallengesRejected prometheus.Counter
	MassVerified       prometheus.Counter

	// Failed collaborator calls by collaborator, op and sentinel kind
	CollaboratorErrors *prometheus.CounterVec

	PendingChallenges prometheus.Gauge

	HandleLatency *prometheus.HistogramVec
}

// New registers the engine metrics on reg. Passing nil uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_engine_outcomes_total",
			Help: "Engine event outcomes by operation",
		}, []string{"op", "outcome"}),

		ChallengesIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_challenges_issued_total",
			Help: "Challenges sent to unverified members",
		}),
		ChallengesPassed: f.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_challenges_passed_total",
			Help: "Challenges answered by the challenged member",
		}),
		ChallengesExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_challenges_expired_total",
			Help: "Challenges that ran out of time and led to a restriction",
		}),
		ChallengesRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_challenges_rejected_total",
			Help: "Challenge responses refused because the token did not belong to the responder",
		}),
		MassVerified: f.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_mass_verified_total",
			Help: "Members verified without a challenge",
		}),

		CollaboratorErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_collaborator_errors_total",
			Help: "Failed store, gateway and notifier calls",
		}, []string{"collaborator", "op", "kind"}),

		PendingChallenges: f.NewGauge(prometheus.GaugeOpts{
			Name: "gatekeeper_pending_challenges",
			Help: "Challenges waiting for an answer",
		}),

		HandleLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatekeeper_engine_handle_duration_seconds",
			Help:    "Duration of engine operations including remote calls",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op"}),
	}
}

func (m *Metrics) RecordOutcome(op, outcome string, d time.Duration) {
	if m != nil {
		m.Outcomes.WithLabelValues(op, outcome).Inc()
		m.HandleLatency.WithLabelValues(op).Observe(d.Seconds())
	}
}

func (m *Metrics) IncChallengeIssued() {
	if m != nil {
		m.ChallengesIssued.Inc()
	}
}

func (m *Metrics) IncChallengePassed() {
	if m != nil {
		m.ChallengesPassed.Inc()
	}
}

func (m *Metrics) IncChallengeExpired() {
	if m != nil {
		m.ChallengesExpired.Inc()
	}
}

func (m *Metrics) IncChallengeRejected() {
	if m != nil {
		m.ChallengesRejected.Inc()
	}
}

func (m *Metrics) IncMassVerified() {
	if m != nil {
		m.MassVerified.Inc()
	}
}

// IncCollaboratorError records a failed call. kind comes from sentinel.Kind.
func (m *Metrics) IncCollaboratorError(collaborator, op, kind string) {
	if m != nil {
		m.CollaboratorErrors.WithLabelValues(collaborator, op, kind).Inc()
	}
}

// SetPending publishes the number of outstanding challenges.
func (m *Metrics) SetPending(n int) {
	if m != nil {
		m.PendingChallenges.Set(float64(n))
	}
}
