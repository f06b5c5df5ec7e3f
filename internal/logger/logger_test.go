package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"":        zerolog.InfoLevel,
		"INFO":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		" error ": zerolog.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestInitWriterComponentField(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	require.NoError(t, InitWriter(&buf, "info", true))

	l := For("controller")
	l.Info().Str("state", "idle").Msg("tick")
	l.Debug().Msg("hidden")

	out := buf.String()
	assert.Contains(t, out, "component=controller")
	assert.Contains(t, out, "state=idle")
	assert.Contains(t, out, "tick")
	assert.NotContains(t, out, "hidden")
}

func TestInitWriterRejectsBadLevel(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, InitWriter(&buf, "loud", false))
}
