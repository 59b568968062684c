package model

import "time"

// TimestampLayout is the fixed-width prefix of every router log line (DD.MM.YY HH:MM:SS).
const TimestampLayout = "02.01.06 15:04:05"

// LogBundle is the raw output mapping of a router log action, e.g. {"NewDeviceLog": "..."}.
type LogBundle map[string]string

// LogLine is a single router log entry: a 17-character timestamp followed by free text.
type LogLine string

// Timestamp parses the leading timestamp of the line in loc.
func (l LogLine) Timestamp(loc *time.Location) (time.Time, error) {
	s := string(l)
	if len(s) < len(TimestampLayout) {
		return time.ParseInLocation(TimestampLayout, s, loc)
	}
	return time.ParseInLocation(TimestampLayout, s[:len(TimestampLayout)], loc)
}

// Message returns the text after the timestamp prefix.
func (l LogLine) Message() string {
	s := string(l)
	if len(s) <= len(TimestampLayout) {
		return ""
	}
	if s[len(TimestampLayout)] == ' ' {
		return s[len(TimestampLayout)+1:]
	}
	return s[len(TimestampLayout):]
}

// Alert is a log line that matched an alert substring within the recency window.
type Alert struct {
	Line      LogLine
	Pattern   string
	Timestamp time.Time
}

// Run summarizes one invocation.
type Run struct {
	ID         string
	StartedAt  time.Time
	ReportPath string
	LineCount  int
	Alerting   bool
	Alerts     []Alert
}
