package csvlog

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/greenhouse-sensor/internal/sensor"
)

func record(at time.Time) sensor.Record {
	return sensor.Record{
		At: at,
		Readings: []sensor.Reading{
			{Name: "Greenhouse", Humidity: 61.234, Temperature: 75.5, Valid: true},
			{Name: "Outside", Humidity: 48, Temperature: 60.126, Valid: true},
		},
	}
}

func TestFormatLine(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	got := FormatLine(record(at))
	want := "1717243200, Sat Jun  1 12:00:00 UTC 2024, 61.23, 75.50, 48.00, 60.13"
	assert.Equal(t, want, got)
	assert.Len(t, strings.Split(got, separator), 6)
}

func TestFormatLineInvalidReading(t *testing.T) {
	rec := record(time.Unix(100, 0).UTC())
	rec.Readings[1] = sensor.Reading{Name: "Outside", Humidity: math.NaN(), Temperature: math.NaN()}

	fields := strings.Split(FormatLine(rec), separator)
	require.Len(t, fields, 6)
	assert.Equal(t, "100", fields[0])
	assert.Equal(t, "NaN", fields[4])
	assert.Equal(t, "NaN", fields[5])
}

func TestAppendCreatesAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "www", "datalog00000.csv")
	w := NewWriter()

	require.NoError(t, w.Append(path, record(time.Unix(1, 0))))
	require.NoError(t, w.Append(path, record(time.Unix(2, 0))))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "1, "))
	assert.True(t, strings.HasPrefix(lines[1], "2, "))
}

func TestAppendFailsOnUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	err := NewWriter().Append(filepath.Join(blocker, "log.csv"), record(time.Unix(1, 0)))
	assert.Error(t, err)
}
