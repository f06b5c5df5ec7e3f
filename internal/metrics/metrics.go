// Package metrics exposes Prometheus instruments for the sampling loop.
package metrics

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	humidity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "greenhouse_humidity_percent",
			Help: "Last averaged relative humidity per sensor",
		},
		[]string{"sensor"},
	)

	temperature = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "greenhouse_temperature_degrees",
			Help: "Last averaged temperature per sensor",
		},
		[]string{"sensor", "unit"},
	)

	sensorReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenhouse_sensor_reads_total",
			Help: "Raw sensor read attempts by result",
		},
		[]string{"sensor", "result"},
	)

	ticks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenhouse_controller_ticks_total",
			Help: "Controller ticks by the state that ran",
		},
		[]string{"state"},
	)

	statusRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenhouse_status_requests_total",
			Help: "Status endpoint requests by outcome",
		},
		[]string{"outcome"},
	)

	logWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenhouse_log_writes_total",
			Help: "Log file appends by result",
		},
		[]string{"result"},
	)

	iteration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "greenhouse_log_iteration",
			Help: "Persistent log iteration counter",
		},
	)
)

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// SensorRead counts one raw read attempt.
func SensorRead(sensor string, ok bool) {
	sensorReads.WithLabelValues(sensor, result(ok)).Inc()
}

// SetReading records an averaged reading. Invalid readings are exported as NaN.
func SetReading(sensor, unit string, h, t float64, valid bool) {
	if !valid {
		h, t = math.NaN(), math.NaN()
	}
	humidity.WithLabelValues(sensor).Set(h)
	temperature.WithLabelValues(sensor, unit).Set(t)
}

// Tick counts one controller tick in state.
func Tick(state string) {
	ticks.WithLabelValues(state).Inc()
}

// StatusRequest counts a status request outcome (accepted, unknown, limited, error).
func StatusRequest(outcome string) {
	statusRequests.WithLabelValues(outcome).Inc()
}

// LogWrite counts a log append.
func LogWrite(ok bool) {
	logWrites.WithLabelValues(result(ok)).Inc()
}

// SetIteration exports the persistent counter.
func SetIteration(v uint64) {
	iteration.Set(float64(v))
}
