package camera

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommandEmptyDisables(t *testing.T) {
	assert.Nil(t, NewCommand("", "/tmp"))
	assert.Nil(t, NewCommand("   ", "/tmp"))
	assert.NotNil(t, NewCommand(DefaultCommand, "/tmp"))
}

func TestImagePath(t *testing.T) {
	assert.Equal(t, filepath.Join("img", "image-1717243200.jpg"),
		ImagePath("img", time.Unix(1717243200, 0)))
}

func TestCaptureSubstitutesPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs touch")
	}
	dir := t.TempDir()
	c := NewCommand("touch {path}", dir)

	at := time.Unix(42, 0)
	path, err := c.Capture(context.Background(), at)
	require.NoError(t, err)
	assert.Equal(t, ImagePath(dir, at), path)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestCaptureAppendsPathWithoutPlaceholder(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs touch")
	}
	dir := t.TempDir()
	path, err := NewCommand("touch", dir).Capture(context.Background(), time.Unix(7, 0))
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestCaptureReportsFailure(t *testing.T) {
	_, err := NewCommand("/nonexistent/capture-tool", t.TempDir()).Capture(context.Background(), time.Unix(1, 0))
	assert.Error(t, err)
}

func TestFake(t *testing.T) {
	f := &Fake{Dir: "img"}
	path, err := f.Capture(context.Background(), time.Unix(5, 0))
	require.NoError(t, err)
	assert.Equal(t, ImagePath("img", time.Unix(5, 0)), path)
	assert.Len(t, f.Shots, 1)
}
