package history

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/greenhouse-sensor/internal/sensor"
)

func open(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "db", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func rec(unix int64, inner, outer float64) sensor.Record {
	return sensor.Record{
		At: time.Unix(unix, 0),
		Readings: []sensor.Reading{
			{Name: "Greenhouse", Humidity: inner, Temperature: 70, Unit: sensor.Fahrenheit, Samples: 3, Attempts: 3, Valid: true},
			{Name: "Outside", Humidity: outer, Temperature: 50, Unit: sensor.Fahrenheit, Samples: 3, Attempts: 3, Valid: true},
		},
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestRecordAndRecent(t *testing.T) {
	repo := open(t)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, rec(100, 60, 40)))
	require.NoError(t, repo.Record(ctx, rec(400, 61, 41)))

	rows, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, int64(400), rows[0].Unix)
	assert.Equal(t, "Greenhouse", rows[0].Sensor)
	assert.Equal(t, "Outside", rows[1].Sensor)
	require.NotNil(t, rows[0].Humidity)
	assert.Equal(t, 61.0, *rows[0].Humidity)
	assert.Equal(t, "F", rows[0].Unit)
	assert.Equal(t, 3, rows[0].Samples)
	assert.Equal(t, time.Unix(400, 0).UTC(), rows[0].At)
	assert.Equal(t, int64(100), rows[3].Unix)
}

func TestRecentLimit(t *testing.T) {
	repo := open(t)
	ctx := context.Background()
	for i := int64(0); i < 5; i++ {
		require.NoError(t, repo.Record(ctx, rec(i*300, 50, 50)))
	}

	rows, err := repo.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rows, err = repo.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 10)
}

func TestInvalidReadingStoredAsNull(t *testing.T) {
	repo := open(t)
	ctx := context.Background()

	r := rec(100, 60, 40)
	r.Readings[1] = sensor.Reading{Name: "Outside", Humidity: math.NaN(), Temperature: math.NaN(), Unit: sensor.Fahrenheit, Attempts: 3}
	require.NoError(t, repo.Record(ctx, r))

	rows, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[1].Humidity)
	assert.Nil(t, rows[1].Temperature)
	assert.Equal(t, 0, rows[1].Samples)
}

func TestReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	repo, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, repo.Record(context.Background(), rec(1, 1, 1)))
	require.NoError(t, repo.Close())

	repo, err = Open(path)
	require.NoError(t, err)
	defer repo.Close()

	rows, err := repo.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRecordCancelledContext(t *testing.T) {
	repo := open(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, repo.Record(ctx, rec(1, 1, 1)))
}
