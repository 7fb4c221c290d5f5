package observability

import (
	"context"

	"github.com/femto/minion-novel/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Turn outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeFailure = "failure"
	OutcomeBlocked = "blocked"
	OutcomeAborted = "aborted"
)

// Metrics holds the Prometheus collectors fed by the lifecycle hooks.
type Metrics struct {
	Turns         *prometheus.CounterVec
	TurnDuration  *prometheus.HistogramVec
	ToolCalls     *prometheus.CounterVec
	ToolDuration  *prometheus.HistogramVec
	GuardrailHits *prometheus.CounterVec
	StateCommits  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg skips registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "minion_turns_total",
			Help: "Total number of turns by app and outcome",
		}, []string{"app", "outcome"}),
		TurnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "minion_turn_duration_seconds",
			Help:    "Duration of turns",
			Buckets: prometheus.DefBuckets,
		}, []string{"app"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "minion_tool_calls_total",
			Help: "Total number of tool invocations by status",
		}, []string{"tool", "status"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "minion_tool_duration_seconds",
			Help:    "Duration of tool executions",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		GuardrailHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "minion_guardrail_blocks_total",
			Help: "Total number of requests vetoed by guardrails",
		}, []string{"agent", "guardrail"}),
		StateCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "minion_state_commits_total",
			Help: "Total number of agent outputs committed to session state",
		}, []string{"agent"}),
	}
	if reg != nil {
		reg.MustRegister(m.Turns, m.TurnDuration, m.ToolCalls, m.ToolDuration, m.GuardrailHits, m.StateCommits)
	}
	return m
}

// Hooks returns lifecycle hooks recording into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurnEnd: func(_ context.Context, e *domain.TurnEvent) {
			m.Turns.WithLabelValues(e.Key.AppName, outcome(e)).Inc()
			m.TurnDuration.WithLabelValues(e.Key.AppName).Observe(e.Duration.Seconds())
		},
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) {
			status := string(domain.StatusSuccess)
			if e.Result != nil && e.Result.Failed() {
				status = string(domain.StatusFailure)
			}
			m.ToolCalls.WithLabelValues(e.Call.Name, status).Inc()
			m.ToolDuration.WithLabelValues(e.Call.Name).Observe(e.Duration.Seconds())
		},
		OnBlocked: func(_ context.Context, e *domain.GuardrailEvent) {
			m.GuardrailHits.WithLabelValues(e.Agent, e.Guardrail).Inc()
		},
		OnStateCommit: func(_ context.Context, e *domain.CommitEvent) {
			m.StateCommits.WithLabelValues(e.Agent).Inc()
		},
	}
}

func outcome(e *domain.TurnEvent) string {
	f := e.Failure
	switch {
	case e.Err != nil:
		return OutcomeAborted
	case f == nil:
		return OutcomeOK
	case f.Kind == domain.GuardrailBlock:
		return OutcomeBlocked
	default:
		return OutcomeFailure
	}
}
