package inspector

import (
	"fmt"
	"strings"
	"time"

	"github.com/Nao-Mk2/isp-log-reporter/internal/model"
)

// DefaultPatterns are the substrings that make a recent log line notification-worthy.
var DefaultPatterns = []string{
	"Internet connection established successfully. IP address:",
	"PPPoE error:",
}

// DefaultWindow is how far back from the start of the run a line may be and still alert.
const DefaultWindow = 24 * time.Hour

// TimestampError reports a matching line whose timestamp prefix cannot be parsed.
type TimestampError struct {
	Line model.LogLine
	Err  error
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("unparseable timestamp in log line %q: %v", string(e.Line), e.Err)
}

func (e *TimestampError) Unwrap() error { return e.Err }

// Scanner flags lines that contain an alert pattern and are newer than Cutoff.
type Scanner struct {
	Patterns []string
	Cutoff   time.Time
	Location *time.Location
}

// NewScanner returns a Scanner with the default patterns. Timestamps are read in loc;
// nil means the local zone.
func NewScanner(cutoff time.Time, loc *time.Location) *Scanner {
	if loc == nil {
		loc = time.Local
	}
	return &Scanner{Patterns: DefaultPatterns, Cutoff: cutoff, Location: loc}
}

// Cutoff returns the recency threshold for a run started at now.
func Cutoff(now time.Time) time.Time {
	return now.Add(-DefaultWindow)
}

// Check decides whether a single line is an alert. Lines without a pattern are never
// parsed, so their timestamps may be malformed.
func (s *Scanner) Check(line model.LogLine) (model.Alert, bool, error) {
	pattern, ok := s.match(string(line))
	if !ok {
		return model.Alert{}, false, nil
	}
	ts, err := line.Timestamp(s.Location)
	if err != nil {
		return model.Alert{}, false, &TimestampError{Line: line, Err: err}
	}
	if !ts.After(s.Cutoff) {
		return model.Alert{}, false, nil
	}
	return model.Alert{Line: line, Pattern: pattern, Timestamp: ts}, true, nil
}

// Scan checks every line and returns the alerts in input order. It stops at the first
// timestamp error.
func (s *Scanner) Scan(lines []model.LogLine) ([]model.Alert, error) {
	var alerts []model.Alert
	for _, l := range lines {
		a, ok, err := s.Check(l)
		if err != nil {
			return nil, err
		}
		if ok {
			alerts = append(alerts, a)
		}
	}
	return alerts, nil
}

func (s *Scanner) match(line string) (string, bool) {
	for _, p := range s.Patterns {
		if strings.Contains(line, p) {
			return p, true
		}
	}
	return "", false
}
