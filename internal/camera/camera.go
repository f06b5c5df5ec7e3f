// Package camera captures still images with an external utility.
package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultCommand captures one frame from the first webcam. {path} is replaced
// by the output file.
const DefaultCommand = "fswebcam --no-banner -r 1280x720 {path}"

const (
	pathPlaceholder = "{path}"
	captureTimeout  = 30 * time.Second
)

// Capturer takes a still image.
type Capturer interface {
	Capture(ctx context.Context, at time.Time) (string, error)
}

// Command runs a capture utility.
type Command struct {
	argv []string
	dir  string
}

// NewCommand parses command into arguments. An empty command disables capture
// and returns nil.
func NewCommand(command, dir string) *Command {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil
	}
	return &Command{argv: argv, dir: dir}
}

// ImagePath returns dir/image-<unix>.jpg.
func ImagePath(dir string, at time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("image-%d.jpg", at.Unix()))
}

// Capture runs the command and returns the image path.
func (c *Command) Capture(ctx context.Context, at time.Time) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create image directory: %w", err)
	}
	path := ImagePath(c.dir, at)

	args := make([]string, 0, len(c.argv))
	substituted := false
	for _, a := range c.argv[1:] {
		if strings.Contains(a, pathPlaceholder) {
			a = strings.ReplaceAll(a, pathPlaceholder, path)
			substituted = true
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, path)
	}

	ctx, cancel := context.WithTimeout(ctx, captureTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, c.argv[0], args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", c.argv[0], err, strings.TrimSpace(string(out)))
	}
	return path, nil
}

// Fake records capture times and returns ImagePath for each.
type Fake struct {
	Dir   string
	Err   error
	Shots []time.Time
}

// Capture records at.
func (f *Fake) Capture(_ context.Context, at time.Time) (string, error) {
	f.Shots = append(f.Shots, at)
	if f.Err != nil {
		return "", f.Err
	}
	return ImagePath(f.Dir, at), nil
}
