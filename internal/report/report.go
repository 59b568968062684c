package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Nao-Mk2/isp-log-reporter/internal/model"
)

// TimestampLayout formats the run timestamp used in report names, e.g. 2019-07-01-13-04-59.
const TimestampLayout = "2006-01-02-15-04-05"

const fileSuffix = "-log_stats.txt"

// Timestamp formats t for report file names and mail subjects.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Path returns <dir>/<timestamp>-log_stats.txt.
func Path(dir, timestamp string) string {
	return filepath.Join(dir, timestamp+fileSuffix)
}

// Write creates dir if needed and writes one line per row to the report for timestamp.
// It returns the report path.
func Write(dir, timestamp string, lines []model.LogLine) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: create %s: %w", dir, err)
	}
	path := Path(dir, timestamp)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("report: open %s: %w", path, err)
	}

	w := bufio.NewWriter(f)
	for _, l := range lines {
		if _, err := w.WriteString(string(l) + "\n"); err != nil {
			f.Close()
			return "", fmt.Errorf("report: write: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return "", fmt.Errorf("report: flush: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("report: close: %w", err)
	}
	return path, nil
}
