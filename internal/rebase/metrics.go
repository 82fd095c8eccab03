package rebase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/simplesurance/rebasebot/internal/logfields"
)

const metricNamespace = "rebasebot"

const (
	receivedCommandsMetricName = "received_commands_total"
	rebaseResultsMetricName    = "rebase_results_total"
)

const resultLabel = "result"

type resultLabelVal string

const (
	resultLabelPerformedVal     resultLabelVal = "performed"
	resultLabelNotNeededVal     resultLabelVal = "not_needed"
	resultLabelConflictVal      resultLabelVal = "conflict"
	resultLabelRemoteChangedVal resultLabelVal = "remote_changed"
	resultLabelErrorVal         resultLabelVal = "error"
)

type metricCollector struct {
	logger           *zap.Logger
	receivedCommands prometheus.Counter
	rebaseResults    *prometheus.CounterVec
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		logger: zap.L().Named(loggerName).Named("metrics"),
		receivedCommands: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      receivedCommandsMetricName,
				Help:      "count of received rebase commands",
			},
		),
		rebaseResults: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      rebaseResultsMetricName,
				Help:      "count of finished rebase runs per result",
			},
			[]string{resultLabel},
		),
	}
}

func (m *metricCollector) ReceivedCommandsInc() {
	m.receivedCommands.Inc()
}

func (m *metricCollector) RebaseResultInc(result resultLabelVal) {
	cnt, err := m.rebaseResults.GetMetricWith(prometheus.Labels{resultLabel: string(result)})
	if err != nil {
		m.logger.Warn(
			"could not record metric",
			zap.String("metric", rebaseResultsMetricName),
			logfields.Event("recording_metric_failed"),
			zap.Error(err),
		)
		return
	}

	cnt.Inc()
}
