package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Nao-Mk2/isp-log-reporter/internal/archive"
	"github.com/Nao-Mk2/isp-log-reporter/internal/client"
	"github.com/Nao-Mk2/isp-log-reporter/internal/history"
	"github.com/Nao-Mk2/isp-log-reporter/internal/inspector"
	"github.com/Nao-Mk2/isp-log-reporter/internal/logging"
	"github.com/Nao-Mk2/isp-log-reporter/internal/notify"
	"github.com/Nao-Mk2/isp-log-reporter/internal/reporter"

	"github.com/Nao-Mk2/isp-log-reporter/cmd"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: isp-log-reporter [--log-dir logs] [--notifier gmail|smtp|none] [--always-notify] [--since RFC3339] [--tz Europe/Berlin]")
	fmt.Fprintln(w, "Environment: ISP_RTR_UNAME, ISP_RTR_PWORD and ISP_RTR_ADDRESS are required; ISP_MAIL_FROM for gmail; ISP_SMTP_USER and ISP_SMTP_PASSWORD for smtp.")
}

func main() {
	os.Exit(run(os.Stdout, os.Stderr))
}

// run executes one invocation and returns the process exit code. Deferred cleanup
// always runs before main exits.
func run(stdout, stderr io.Writer) int {
	// Parse flags/env and validate before touching the network
	opts := cmd.CollectOptions()
	if msg, code := opts.Validate(); code != 0 {
		if code == 2 {
			usage(stderr)
		}
		fmt.Fprintln(stderr, msg)
		return code
	}

	log := logging.New(stdout, opts.LogLevel, opts.LogFormat)

	now := time.Now()
	cutoff, err := cmd.ResolveCutoff(opts.Since, now)
	if err != nil {
		fmt.Fprintf(stderr, "invalid --since: %v\n", err)
		return 2
	}
	loc, err := cmd.ResolveLocation(opts.TimeZone)
	if err != nil {
		fmt.Fprintf(stderr, "invalid --tz: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.ShowHistory > 0 {
		if err := showHistory(ctx, stdout, opts.HistoryDB, opts.ShowHistory); err != nil {
			log.WithError(err).Error("reading run history failed")
			return 1
		}
		return 0
	}

	router, err := client.NewRouter(opts.RouterAddress, opts.RouterUser, opts.RouterPassword, client.WithTimeout(opts.Timeout))
	if err != nil {
		log.WithError(err).Error("invalid router address")
		return 1
	}
	log.WithField("router", router.BaseURL()).Debug("router session created")

	if opts.ListServices {
		if err := listServices(ctx, stdout, router); err != nil {
			log.WithError(err).Error("describe router failed")
			return 1
		}
		return 0
	}

	var rOpts []reporter.Option
	if opts.HistoryDB != "" {
		store, err := history.Open(ctx, opts.HistoryDB)
		if err != nil {
			log.WithError(err).Error("failed to open run history")
			return 1
		}
		defer closeStore(store, log)
		rOpts = append(rOpts, reporter.WithRecorder(store))
	}
	if opts.CloudWatchGroup != "" {
		cw, err := client.NewCloudWatchClient(ctx, client.NewCloudWatchOptions(client.AuthOptions{
			Region:  opts.Region,
			Profile: opts.Profile,
		})...)
		if err != nil {
			log.WithError(err).Error("failed to create CloudWatch client")
			return 1
		}
		rOpts = append(rOpts, reporter.WithArchiver(archive.New(cw, opts.CloudWatchGroup)))
	}

	notifier, err := buildNotifier(ctx, opts, stdout, log)
	if err != nil {
		log.WithError(err).Error("notifier setup failed")
		return 1
	}

	insp := inspector.New(router, opts.Service, opts.Action, opts.LogField)
	scanner := inspector.NewScanner(cutoff, loc)
	cfg := reporter.Config{
		RunID:        history.NewRunID(),
		StartedAt:    now,
		LogDir:       opts.LogDir,
		MailFrom:     opts.MailFrom,
		MailTo:       opts.MailTo,
		AlwaysNotify: opts.AlwaysNotify,
	}
	log.WithFields(logrus.Fields{
		"cutoff":   cutoff.Format(time.RFC3339),
		"notifier": opts.Notifier,
	}).Debug("starting run")

	result, err := reporter.New(insp, scanner, notifier, cfg, log, rOpts...).Run(ctx)
	if err != nil {
		log.WithError(err).Error("run failed")
		return 1
	}
	log.WithFields(logrus.Fields{
		"report":   result.ReportPath,
		"lines":    result.LineCount,
		"alerting": result.Alerting,
	}).Info("run complete")
	return 0
}

func closeStore(store *history.Store, log logrus.FieldLogger) {
	if err := store.Close(); err != nil {
		log.WithError(err).Warn("closing run history failed")
	}
}

func buildNotifier(ctx context.Context, opts *cmd.Options, promptOut io.Writer, log logrus.FieldLogger) (notify.Notifier, error) {
	switch opts.Notifier {
	case cmd.NotifierGmail:
		svc, err := client.NewGmailService(ctx, client.GmailAuth{
			CredentialsPath: opts.GmailCredentials,
			TokenPath:       opts.GmailToken,
			Prompt:          os.Stdin,
			PromptOut:       promptOut,
		})
		if err != nil {
			return nil, err
		}
		return notify.NewGmail(svc, log), nil
	case cmd.NotifierSMTP:
		return notify.NewSMTP(notify.SMTPConfig{
			Host:     opts.SMTPHost,
			Port:     opts.SMTPPort,
			Username: opts.SMTPUser,
			Password: opts.SMTPPassword,
		}, log), nil
	default:
		return notify.NewDiscard(log), nil
	}
}

func showHistory(ctx context.Context, out io.Writer, path string, n int) error {
	store, err := history.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()
	runs, err := store.LastRuns(ctx, n)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	for _, r := range runs {
		state := "ok"
		if r.Alerting {
			state = "ALERT"
		}
		fmt.Fprintf(w, "%s %-5s %4d lines %s\n", r.StartedAt.Local().Format(time.RFC3339), state, r.LineCount, r.ReportPath)
		for _, a := range r.Alerts {
			fmt.Fprintf(w, "    %s\n", a.Line)
		}
	}
	return w.Flush()
}

func listServices(ctx context.Context, out io.Writer, router *client.Router) error {
	desc, err := router.Describe(ctx)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	fmt.Fprintf(w, "%s (%s)\n", desc.FriendlyName, desc.ModelName)
	for _, s := range desc.Services {
		fmt.Fprintf(w, "%-32s %s\n", s.Name(), s.ControlURL)
	}
	return w.Flush()
}
