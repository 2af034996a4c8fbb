package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "powerform"

var factory = promauto.With(Registry)

var (
	// LinksIssued counts minted links by how their questionnaire was chosen.
	LinksIssued = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "links_issued_total",
		Help:      "Questionnaire links minted, by questionnaire resolution path.",
	}, []string{"source"})

	// LinkResolutions counts ResolveLink outcomes.
	LinkResolutions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "link_resolutions_total",
		Help:      "Link resolutions by outcome.",
	}, []string{"outcome"})

	// Submissions counts SubmitResponse outcomes.
	Submissions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Response submissions by outcome.",
	}, []string{"outcome"})

	// Notifications counts notification deliveries by kind and outcome.
	Notifications = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification sends by mail kind and outcome.",
	}, []string{"kind", "outcome"})

	// OutboundRetries counts retried attempts of outbound calls.
	OutboundRetries = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbound_retries_total",
		Help:      "Retried attempts of outbound calls.",
	})
)

// Outcome labels shared by the counters above.
const (
	OutcomeOK              = "ok"
	OutcomeNotFound        = "not_found"
	OutcomeExpired         = "expired"
	OutcomeAlreadyConsumed = "already_consumed"
	OutcomeInvalid         = "invalid"
	OutcomeError           = "error"
	OutcomeSkipped         = "skipped"
)
