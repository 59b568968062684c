package reporter

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Nao-Mk2/isp-log-reporter/internal/archive"
	"github.com/Nao-Mk2/isp-log-reporter/internal/inspector"
	"github.com/Nao-Mk2/isp-log-reporter/internal/model"
	"github.com/Nao-Mk2/isp-log-reporter/internal/notify"
	"github.com/Nao-Mk2/isp-log-reporter/internal/report"
)

// LineSource produces the router log lines for one run.
type LineSource interface {
	Lines(ctx context.Context) ([]model.LogLine, error)
}

// Archiver ships report lines somewhere durable.
type Archiver interface {
	Ship(ctx context.Context, stream string, at time.Time, lines []model.LogLine) (int, error)
}

// Recorder persists a run summary.
type Recorder interface {
	RecordRun(ctx context.Context, run model.Run) error
}

// Config is the per-run configuration.
type Config struct {
	RunID        string
	StartedAt    time.Time
	LogDir       string
	MailFrom     string
	MailTo       string
	AlwaysNotify bool
}

// Option configures optional Reporter stages.
type Option func(*Reporter)

// WithArchiver enables shipping the report lines.
func WithArchiver(a Archiver) Option {
	return func(r *Reporter) { r.archiver = a }
}

// WithRecorder enables the run history.
func WithRecorder(rec Recorder) Option {
	return func(r *Reporter) { r.recorder = rec }
}

// Reporter runs fetch, scan, write, archive, record and notify in sequence.
type Reporter struct {
	source   LineSource
	scanner  *inspector.Scanner
	notifier notify.Notifier
	archiver Archiver
	recorder Recorder
	cfg      Config
	log      logrus.FieldLogger
}

// New creates a Reporter.
func New(source LineSource, scanner *inspector.Scanner, notifier notify.Notifier, cfg Config, log logrus.FieldLogger, opts ...Option) *Reporter {
	r := &Reporter{
		source:   source,
		scanner:  scanner,
		notifier: notifier,
		cfg:      cfg,
		log:      log.WithField("run_id", cfg.RunID),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one report cycle. Any stage error aborts the remaining stages, except
// that the run is still recorded before a failed notification is returned.
func (r *Reporter) Run(ctx context.Context) (model.Run, error) {
	run := model.Run{ID: r.cfg.RunID, StartedAt: r.cfg.StartedAt}
	ts := report.Timestamp(r.cfg.StartedAt)

	r.log.Info("retrieving router log")
	lines, err := r.source.Lines(ctx)
	if err != nil {
		return run, fmt.Errorf("fetch log: %w", err)
	}
	run.LineCount = len(lines)
	r.log.WithField("lines", len(lines)).Info("router log retrieved")
	for _, l := range lines {
		r.log.Debugf("Log Entry: %s", l)
	}

	alerts, err := r.scanner.Scan(lines)
	if err != nil {
		return run, fmt.Errorf("scan log: %w", err)
	}
	run.Alerts = alerts
	run.Alerting = len(alerts) > 0
	for _, a := range alerts {
		r.log.WithField("pattern", a.Pattern).Warnf("ALERT %s", a.Line)
	}

	path, err := report.Write(r.cfg.LogDir, ts, lines)
	if err != nil {
		return run, err
	}
	run.ReportPath = path
	r.log.WithField("path", path).Info("report written")

	if r.archiver != nil {
		calls, err := r.archiver.Ship(ctx, archive.StreamName(ts, run.ID), r.cfg.StartedAt, lines)
		if err != nil {
			return run, fmt.Errorf("archive report: %w", err)
		}
		r.log.WithField("batches", calls).Info("report archived")
	}

	if r.recorder != nil {
		if err := r.recorder.RecordRun(ctx, run); err != nil {
			return run, err
		}
		r.log.Debug("run recorded")
	}

	if !run.Alerting && !r.cfg.AlwaysNotify {
		r.log.Info("no alerts, not sending mail")
		return run, nil
	}
	msg := notify.Message{
		From:        r.cfg.MailFrom,
		To:          r.cfg.MailTo,
		Subject:     notify.Subject(ts, run.Alerting),
		Body:        notify.Body(path, alerts, r.scanner.Cutoff),
		Attachments: []string{path},
	}
	if err := r.notifier.Send(ctx, msg); err != nil {
		r.log.WithError(err).Error("sending report failed")
		return run, fmt.Errorf("notify: %w", err)
	}
	return run, nil
}
