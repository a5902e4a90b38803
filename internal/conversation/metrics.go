package conversation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricUtterances = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversation_utterances_total",
		Help: "Total utterances dispatched to the interpreter",
	})

	metricBusyRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversation_busy_rejections_total",
		Help: "Submissions rejected because an interpretation was in flight",
	})

	metricConfirmations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversation_confirmations_total",
		Help: "Drafts confirmed and handed to persistence",
	})

	metricStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversation_state_transitions_total",
		Help: "Conversation state transitions",
	}, []string{"from", "to"})
)
