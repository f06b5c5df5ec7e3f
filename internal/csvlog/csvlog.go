// Package csvlog appends sensor records to rotating CSV files.
package csvlog

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/greenhouse-sensor/internal/sensor"
)

const separator = ", "

// HumanTime is the format of the human readable timestamp column.
const HumanTime = time.UnixDate

// Writer appends lines to log files. Each Append opens and closes the file so
// a removed card or rotated file is picked up on the next record.
type Writer struct {
	Perm os.FileMode
}

// NewWriter returns a Writer creating files 0644.
func NewWriter() *Writer {
	return &Writer{Perm: 0o644}
}

// Append writes rec as one line at the end of path, creating it if needed.
func (w *Writer) Append(path string, rec sensor.Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, w.Perm)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	if _, err := f.WriteString(FormatLine(rec) + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("write log line: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}

// FormatLine renders unix, human, then humidity and temperature for each
// reading in order.
func FormatLine(rec sensor.Record) string {
	fields := make([]string, 0, 2+2*len(rec.Readings))
	fields = append(fields,
		strconv.FormatInt(rec.At.Unix(), 10),
		rec.At.Format(HumanTime),
	)
	for _, r := range rec.Readings {
		h, t := r.Humidity, r.Temperature
		if !r.Valid {
			h, t = math.NaN(), math.NaN()
		}
		fields = append(fields, formatValue(h), formatValue(t))
	}
	return strings.Join(fields, separator)
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
