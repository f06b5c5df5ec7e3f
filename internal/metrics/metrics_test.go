package metrics

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSensorRead(t *testing.T) {
	before := testutil.ToFloat64(sensorReads.WithLabelValues("Probe", "error"))
	SensorRead("Probe", false)
	SensorRead("Probe", true)
	assert.Equal(t, before+1, testutil.ToFloat64(sensorReads.WithLabelValues("Probe", "error")))
}

func TestSetReading(t *testing.T) {
	SetReading("Probe", "F", 55.5, 71.25, true)
	assert.Equal(t, 55.5, testutil.ToFloat64(humidity.WithLabelValues("Probe")))
	assert.Equal(t, 71.25, testutil.ToFloat64(temperature.WithLabelValues("Probe", "F")))

	SetReading("Probe", "F", 0, 0, false)
	assert.True(t, math.IsNaN(testutil.ToFloat64(humidity.WithLabelValues("Probe"))))
}

func TestCountersAndIteration(t *testing.T) {
	before := testutil.ToFloat64(ticks.WithLabelValues("idle"))
	Tick("idle")
	assert.Equal(t, before+1, testutil.ToFloat64(ticks.WithLabelValues("idle")))

	before = testutil.ToFloat64(logWrites.WithLabelValues("ok"))
	LogWrite(true)
	assert.Equal(t, before+1, testutil.ToFloat64(logWrites.WithLabelValues("ok")))

	before = testutil.ToFloat64(statusRequests.WithLabelValues("limited"))
	StatusRequest("limited")
	assert.Equal(t, before+1, testutil.ToFloat64(statusRequests.WithLabelValues("limited")))

	SetIteration(290)
	assert.Equal(t, 290.0, testutil.ToFloat64(iteration))
}
