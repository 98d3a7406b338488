package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "studio"

// MembershipMetrics counts application decisions, member provisioning and notification delivery.
type MembershipMetrics struct {
	decisions     *prometheus.CounterVec
	provisioning  *prometheus.CounterVec
	notifications *prometheus.CounterVec
	submissions   prometheus.Counter
}

// NewMembershipMetrics registers the membership metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewMembershipMetrics(reg prometheus.Registerer) *MembershipMetrics {
	if reg == nil {
		return &MembershipMetrics{}
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "application_decisions_total",
		Help:      "Application decisions by decision and outcome.",
	}, []string{"decision", "outcome"})
	provisioning := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "member_provisioning_total",
		Help:      "Member provisioning attempts by result.",
	}, []string{"result"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification sends by template and result.",
	}, []string{"template", "result"})
	submissions := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "application_submissions_total",
		Help:      "Accepted membership application submissions.",
	})
	reg.MustRegister(decisions, provisioning, notifications, submissions)
	return &MembershipMetrics{
		decisions:     decisions,
		provisioning:  provisioning,
		notifications: notifications,
		submissions:   submissions,
	}
}

// IncDecision records the outcome of one decide call ("ok", "conflict", "invalid_state", "error").
func (m *MembershipMetrics) IncDecision(decision, outcome string) {
	if m == nil || m.decisions == nil {
		return
	}
	m.decisions.WithLabelValues(normalizeLabel(decision), normalizeLabel(outcome)).Inc()
}

// IncProvisioning records "created", "reused" or "failed".
func (m *MembershipMetrics) IncProvisioning(result string) {
	if m == nil || m.provisioning == nil {
		return
	}
	m.provisioning.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncNotification records "sent" or "failed" for a template.
func (m *MembershipMetrics) IncNotification(template, result string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(normalizeLabel(template), normalizeLabel(result)).Inc()
}

// IncSubmission counts an accepted intake.
func (m *MembershipMetrics) IncSubmission() {
	if m == nil || m.submissions == nil {
		return
	}
	m.submissions.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
