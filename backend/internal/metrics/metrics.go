// Package metrics exposes Prometheus instruments for stage tracking.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder groups every instrument the server exports. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	stageEvents         *prometheus.CounterVec
	upserts             *prometheus.CounterVec
	upsertDuration      prometheus.Histogram
	upsertConflicts     prometheus.Counter
	workflowTransitions *prometheus.CounterVec
	chatTurns           *prometheus.CounterVec
	pushNotifications   *prometheus.CounterVec
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		stageEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procure_stage_events_total",
				Help: "Engine events classified into agent stages, by mode, stage, status and event.",
			},
			[]string{"mode", "stage", "status", "event"},
		),
		upserts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procure_agent_task_upserts_total",
				Help: "Agent task state upserts by outcome.",
			},
			[]string{"outcome"},
		),
		upsertDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "procure_agent_task_upsert_duration_seconds",
				Help:    "Latency of agent task upserts including retries.",
				Buckets: prometheus.DefBuckets,
			},
		),
		upsertConflicts: f.NewCounter(
			prometheus.CounterOpts{
				Name: "procure_agent_task_upsert_conflicts_total",
				Help: "Optimistic concurrency conflicts retried by the agent task store.",
			},
		),
		workflowTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procure_workflow_transitions_total",
				Help: "Client workflow transitions by cause and target stage.",
			},
			[]string{"cause", "stage"},
		),
		chatTurns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procure_chat_turns_total",
				Help: "Streaming chat turns by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),
		pushNotifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procure_push_notifications_total",
				Help: "Web push deliveries by outcome.",
			},
			[]string{"outcome"},
		),
	}
}

func (r *Recorder) ObserveStageEvent(mode, stage, status, event string) {
	if r == nil {
		return
	}
	r.stageEvents.WithLabelValues(mode, stage, status, event).Inc()
}

// ObserveUpsert records one finished upsert. outcome is ok or error.
func (r *Recorder) ObserveUpsert(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.upserts.WithLabelValues(outcome).Inc()
	r.upsertDuration.Observe(d.Seconds())
}

func (r *Recorder) IncUpsertConflict() {
	if r == nil {
		return
	}
	r.upsertConflicts.Inc()
}

func (r *Recorder) ObserveWorkflowTransition(cause, stage string) {
	if r == nil {
		return
	}
	r.workflowTransitions.WithLabelValues(cause, stage).Inc()
}

func (r *Recorder) ObserveChatTurn(mode, outcome string) {
	if r == nil {
		return
	}
	r.chatTurns.WithLabelValues(mode, outcome).Inc()
}

func (r *Recorder) ObservePush(outcome string) {
	if r == nil {
		return
	}
	r.pushNotifications.WithLabelValues(outcome).Inc()
}
