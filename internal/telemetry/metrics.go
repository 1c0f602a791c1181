package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики протокольного менеджера.
var (
	// MessagesIn — входящие сообщения по namespace и исходу обработки.
	MessagesIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "machina",
		Name:      "messages_in_total",
		Help:      "Inbound wire messages by namespace and outcome.",
	}, []string{"namespace", "outcome"})

	// MessagesOut — исходящие сообщения по типу.
	MessagesOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "machina",
		Name:      "messages_out_total",
		Help:      "Outbound wire messages by type.",
	}, []string{"type"})

	// ActiveScopes — живые scope'ы по composite method.
	ActiveScopes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "machina",
		Name:      "active_scopes",
		Help:      "Live execution scopes per composite method.",
	}, []string{"method"})

	// RunningRegistrySize — размер реестра приостановленных вызовов.
	RunningRegistrySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "machina",
		Name:      "running_registry_size",
		Help:      "Entries in the running-method registry.",
	})

	// ReapedScopes — scope'ы, отменённые watchdog'ом.
	ReapedScopes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "machina",
		Name:      "reaped_scopes_total",
		Help:      "Stale scopes cancelled by the watchdog.",
	})
)
