package cmd

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Nao-Mk2/isp-log-reporter/internal/inspector"
)

// Environment variables that must be present before anything touches the network.
const (
	EnvRouterUser     = "ISP_RTR_UNAME"
	EnvRouterPassword = "ISP_RTR_PWORD"
	EnvRouterAddress  = "ISP_RTR_ADDRESS"
)

// RequiredEnv lists the router credentials in the order they are reported.
var RequiredEnv = []string{EnvRouterUser, EnvRouterPassword, EnvRouterAddress}

// Notifier names accepted by --notifier.
const (
	NotifierGmail = "gmail"
	NotifierSMTP  = "smtp"
	NotifierNone  = "none"
)

// Options holds CLI options after parsing flags and env defaults.
type Options struct {
	RouterAddress  string
	RouterUser     string
	RouterPassword string
	Service        string
	Action         string
	LogField       string
	Timeout        time.Duration
	ListServices   bool

	LogDir   string
	Since    string
	TimeZone string

	Notifier         string
	AlwaysNotify     bool
	MailFrom         string
	MailTo           string
	GmailCredentials string
	GmailToken       string
	SMTPHost         string
	SMTPPort         int
	SMTPUser         string
	SMTPPassword     string

	CloudWatchGroup string
	Region          string
	Profile         string

	HistoryDB   string
	ShowHistory int

	LogLevel  string
	LogFormat string
	EnvFile   string
}

// MissingEnv returns the required router variables that are unset, in RequiredEnv order.
// The address also counts as set when given by flag.
func (o *Options) MissingEnv() []string {
	var missing []string
	for _, key := range RequiredEnv {
		var v string
		switch key {
		case EnvRouterUser:
			v = o.RouterUser
		case EnvRouterPassword:
			v = o.RouterPassword
		case EnvRouterAddress:
			v = o.RouterAddress
		}
		if v == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// Validate checks relationships and required settings.
// Returns an error message and exit code: 1 for missing configuration, 2 for bad flags.
func (o *Options) Validate() (string, int) {
	// --show-history reads the local database only, so router settings are not required.
	if o.ShowHistory < 0 {
		return "error: --show-history must not be negative", 2
	}
	if o.ShowHistory > 0 {
		if o.HistoryDB == "" {
			return "error: --show-history requires --history-db (or ISP_HISTORY_DB)", 2
		}
		return "", 0
	}
	if missing := o.MissingEnv(); len(missing) > 0 {
		return "error: missing required environment variables: " + strings.Join(missing, ", "), 1
	}
	if o.Timeout <= 0 {
		return "error: --timeout must be positive", 2
	}
	if _, err := ResolveLocation(o.TimeZone); err != nil {
		return fmt.Sprintf("error: invalid --tz: %v", err), 2
	}
	if o.ListServices {
		return "", 0
	}
	switch o.Notifier {
	case NotifierGmail:
		if o.MailFrom == "" {
			return "error: missing required environment variables: ISP_MAIL_FROM", 1
		}
	case NotifierSMTP:
		var missing []string
		if o.SMTPUser == "" {
			missing = append(missing, "ISP_SMTP_USER")
		}
		if o.SMTPPassword == "" {
			missing = append(missing, "ISP_SMTP_PASSWORD")
		}
		if len(missing) > 0 {
			return "error: missing required environment variables: " + strings.Join(missing, ", "), 1
		}
		if o.SMTPPort <= 0 || o.SMTPPort > 65535 {
			return "error: invalid SMTP port " + strconv.Itoa(o.SMTPPort), 2
		}
	case NotifierNone:
	default:
		return fmt.Sprintf("error: unknown --notifier %q (want gmail, smtp or none)", o.Notifier), 2
	}
	return "", 0
}

// CollectOptions loads the optional env file, then parses flags with environment-backed
// defaults and returns Options.
func CollectOptions() *Options {
	envFile := os.Getenv("ISP_ENV_FILE")
	if v, ok := LookupFlagValue("--env-file"); ok {
		envFile = v
	}
	if envFile != "" {
		// godotenv.Load never overrides variables already set in the environment.
		if err := godotenv.Load(envFile); err != nil {
			fmt.Fprintf(os.Stderr, "warning: cannot load env file %s: %v\n", envFile, err)
		}
	}

	o := &Options{
		RouterUser:     os.Getenv(EnvRouterUser),
		RouterPassword: os.Getenv(EnvRouterPassword),
		SMTPUser:       os.Getenv("ISP_SMTP_USER"),
		SMTPPassword:   os.Getenv("ISP_SMTP_PASSWORD"),
	}

	flag.StringVar(&o.EnvFile, "env-file", envFile, "Load KEY=VALUE pairs from this file before reading the environment")
	flag.StringVar(&o.RouterAddress, "address", os.Getenv(EnvRouterAddress), "Router address (or set ISP_RTR_ADDRESS)")
	flag.StringVar(&o.Service, "service", inspector.DefaultService, "TR-064 service holding the device log")
	flag.StringVar(&o.Action, "action", inspector.DefaultAction, "TR-064 action returning the device log")
	flag.StringVar(&o.LogField, "log-field", inspector.DefaultField, "JMESPath selecting the log text from the action output")
	flag.DurationVar(&o.Timeout, "timeout", 30*time.Second, "Router request timeout")
	flag.BoolVar(&o.ListServices, "list-services", false, "Print the router's TR-064 services and exit")

	flag.StringVar(&o.LogDir, "log-dir", getenv("ISP_LOG_DIR", "logs"), "Directory for report files")
	flag.StringVar(&o.Since, "since", "", "Alert cutoff RFC3339 (default: 24h before start)")
	flag.StringVar(&o.TimeZone, "tz", os.Getenv("ISP_RTR_TIMEZONE"), "IANA time zone of router timestamps (default: local)")

	flag.StringVar(&o.Notifier, "notifier", getenv("ISP_NOTIFIER", NotifierGmail), "Mail delivery: gmail, smtp or none")
	flag.BoolVar(&o.AlwaysNotify, "always-notify", false, "Mail the report even when nothing alerts")
	flag.StringVar(&o.MailFrom, "from", os.Getenv("ISP_MAIL_FROM"), "Sender address (or set ISP_MAIL_FROM)")
	flag.StringVar(&o.MailTo, "to", os.Getenv("ISP_MAIL_TO"), "Recipient address (default: sender)")
	flag.StringVar(&o.GmailCredentials, "gmail-credentials", getenv("ISP_GMAIL_CREDENTIALS", "credentials_home_automation.json"), "OAuth client secrets file")
	flag.StringVar(&o.GmailToken, "gmail-token", getenv("ISP_GMAIL_TOKEN", "token.json"), "Cached OAuth token file")
	flag.StringVar(&o.SMTPHost, "smtp-host", getenv("ISP_SMTP_HOST", "smtp.gmail.com"), "SMTP submission host")
	flag.IntVar(&o.SMTPPort, "smtp-port", getenvInt("ISP_SMTP_PORT", 587), "SMTP submission port")

	flag.StringVar(&o.CloudWatchGroup, "cw-group", os.Getenv("ISP_CW_LOG_GROUP"), "CloudWatch Logs group to archive reports to (optional)")
	flag.StringVar(&o.Region, "region", os.Getenv("AWS_REGION"), "AWS region (optional; falls back to AWS defaults)")
	flag.StringVar(&o.Profile, "profile", "", "AWS shared config profile (or set AWS_PROFILE)")

	flag.StringVar(&o.HistoryDB, "history-db", os.Getenv("ISP_HISTORY_DB"), "SQLite file recording runs (optional)")
	flag.IntVar(&o.ShowHistory, "show-history", 0, "Print the last N recorded runs and exit")

	flag.StringVar(&o.LogLevel, "log-level", getenv("ISP_LOG_LEVEL", "info"), "debug, info, warn or error")
	flag.StringVar(&o.LogFormat, "log-format", getenv("ISP_LOG_FORMAT", "text"), "text or json")
	flag.Parse()

	if o.MailFrom == "" && o.Notifier == NotifierSMTP {
		o.MailFrom = o.SMTPUser
	}
	return o
}

// ResolveCutoff returns the alert recency threshold: 24h before now, or the RFC3339
// time in since. A since later than now is rejected.
func ResolveCutoff(since string, now time.Time) (time.Time, error) {
	if since == "" {
		return inspector.Cutoff(now), nil
	}
	t, err := time.Parse(time.RFC3339, since)
	if err != nil {
		return time.Time{}, err
	}
	if t.After(now) {
		return time.Time{}, ErrSinceInFuture
	}
	return t, nil
}

// ErrSinceInFuture rejects a cutoff that no log line could be newer than.
var ErrSinceInFuture = &timeRangeError{"since is in the future"}

type timeRangeError struct{ s string }

func (e *timeRangeError) Error() string { return e.s }

// ResolveLocation loads an IANA zone; empty means the local zone.
func ResolveLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// LookupFlagValue finds a long flag's value in os.Args before flag parsing, accepting
// both "--flag value" and "--flag=value". The last occurrence wins.
func LookupFlagValue(flagName string) (string, bool) {
	var (
		value string
		found bool
	)
	args := os.Args[1:]
	singleDash := strings.TrimPrefix(flagName, "-")
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == flagName || a == singleDash {
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				value, found = args[i+1], true
				i++
			}
			continue
		}
		if v, ok := strings.CutPrefix(a, flagName+"="); ok {
			value, found = v, true
			continue
		}
		if v, ok := strings.CutPrefix(a, singleDash+"="); ok {
			value, found = v, true
		}
	}
	return value, found
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
