package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GibsMichele/WeatherApp/internal/station"
)

const metricPrefix = "weatherstation_"

// Station exports the publish loop's events. It implements station.Observer.
type Station struct {
	published    prometheus.Counter
	faults       prometheus.Counter
	outages      prometheus.Counter
	failures     prometheus.Counter
	outageActive prometheus.Gauge
}

var _ station.Observer = (*Station)(nil)

// NewStation registers the station collectors on reg.
func NewStation(reg prometheus.Registerer, stationID string) (*Station, error) {
	labels := prometheus.Labels{"station_id": stationID}
	m := &Station{
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        metricPrefix + "readings_published_total",
			Help:        "Readings handed to the sink successfully",
			ConstLabels: labels,
		}),
		faults: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        metricPrefix + "sensor_faults_total",
			Help:        "Readings generated with the -999 fault temperature",
			ConstLabels: labels,
		}),
		outages: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        metricPrefix + "outages_total",
			Help:        "Simulated outages started",
			ConstLabels: labels,
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        metricPrefix + "publish_failures_total",
			Help:        "Publish calls rejected by the sink",
			ConstLabels: labels,
		}),
		outageActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        metricPrefix + "outage_active",
			Help:        "1 while the station is in a simulated outage",
			ConstLabels: labels,
		}),
	}
	for _, c := range []prometheus.Collector{m.published, m.faults, m.outages, m.failures, m.outageActive} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Station) ReadingPublished(station.Reading) { m.published.Inc() }

func (m *Station) FaultInjected() { m.faults.Inc() }

func (m *Station) OutageStarted(time.Time) {
	m.outages.Inc()
	m.outageActive.Set(1)
}

func (m *Station) OutageEnded() { m.outageActive.Set(0) }

func (m *Station) PublishFailed(error) { m.failures.Inc() }
