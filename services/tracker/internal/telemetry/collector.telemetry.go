package telemetry

import (
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/selector"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes recorder and selector metrics to Prometheus. Values are
// read from snapshots at scrape time, so nothing is double-counted.
type Collector struct {
	recorder  *Recorder
	selectors *selector.Registry

	actions        *prometheus.Desc
	actionDuration *prometheus.Desc
	actionErrors   *prometheus.Desc
	history        *prometheus.Desc
	selectorCalls  *prometheus.Desc
	selectorTime   *prometheus.Desc
}

// NewCollector builds a collector. selectors may be nil.
func NewCollector(rec *Recorder, selectors *selector.Registry) *Collector {
	return &Collector{
		recorder:  rec,
		selectors: selectors,
		actions: prometheus.NewDesc("tracker_actions_total",
			"Successfully dispatched actions.", []string{"type"}, nil),
		actionDuration: prometheus.NewDesc("tracker_action_duration_milliseconds_total",
			"Total time spent in successful actions.", []string{"type"}, nil),
		actionErrors: prometheus.NewDesc("tracker_action_errors_total",
			"Failed actions, labelled by error key.", []string{"key"}, nil),
		history: prometheus.NewDesc("tracker_action_history_size",
			"Entries currently in the action history.", nil, nil),
		selectorCalls: prometheus.NewDesc("tracker_selector_calls_total",
			"Selector invocations.", []string{"selector"}, nil),
		selectorTime: prometheus.NewDesc("tracker_selector_duration_milliseconds_total",
			"Total time spent in selectors.", []string{"selector"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.actions
	ch <- c.actionDuration
	ch <- c.actionErrors
	ch <- c.history
	ch <- c.selectorCalls
	ch <- c.selectorTime
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.recorder.Snapshot()
	for actionType, m := range snap.Metrics {
		ch <- prometheus.MustNewConstMetric(c.actions, prometheus.CounterValue, float64(m.Count), actionType)
		ch <- prometheus.MustNewConstMetric(c.actionDuration, prometheus.CounterValue, m.TotalDuration, actionType)
	}
	for key, e := range snap.Errors {
		ch <- prometheus.MustNewConstMetric(c.actionErrors, prometheus.CounterValue, float64(e.Count), key)
	}
	ch <- prometheus.MustNewConstMetric(c.history, prometheus.GaugeValue, float64(len(snap.RecentActions)))

	if c.selectors == nil {
		return
	}
	for _, m := range c.selectors.Snapshot() {
		ch <- prometheus.MustNewConstMetric(c.selectorCalls, prometheus.CounterValue, float64(m.Calls), m.Name)
		ch <- prometheus.MustNewConstMetric(c.selectorTime, prometheus.CounterValue, m.TotalDuration, m.Name)
	}
}
