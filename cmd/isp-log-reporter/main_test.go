package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Nao-Mk2/isp-log-reporter/internal/history"
	"github.com/Nao-Mk2/isp-log-reporter/internal/model"
)

const routerDescription = `<?xml version="1.0"?>
<root xmlns="urn:dslforum-org:device-1-0">
  <device>
    <friendlyName>FRITZ!Box 7590</friendlyName>
    <modelName>FRITZ!Box 7590</modelName>
    <serviceList>
      <service>
        <serviceType>urn:dslforum-org:service:DeviceInfo:1</serviceType>
        <serviceId>urn:DeviceInfo-com:serviceId:DeviceInfo1</serviceId>
        <controlURL>/upnp/control/deviceinfo</controlURL>
        <SCPDURL>/deviceinfoSCPD.xml</SCPDURL>
      </service>
    </serviceList>
  </device>
</root>`

func deviceLogResponse(log string) string {
	return `<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
<s:Body>
<u:GetDeviceLogResponse xmlns:u="urn:dslforum-org:service:DeviceInfo:1">
<NewDeviceLog>` + log + `</NewDeviceLog>
</u:GetDeviceLogResponse>
</s:Body>
</s:Envelope>`
}

// newRouter serves a FRITZ!Box description and answers GetDeviceLog with status and body.
func newRouter(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/tr64desc.xml", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, routerDescription)
	})
	mux.HandleFunc("/upnp/control/deviceinfo", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// invoke runs the command with args on a fresh flag set.
func invoke(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	oldCmd, oldArgs := flag.CommandLine, os.Args
	t.Cleanup(func() {
		flag.CommandLine = oldCmd
		os.Args = oldArgs
	})
	fs := flag.NewFlagSet("isp-log-reporter", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flag.CommandLine = fs
	os.Args = append([]string{"isp-log-reporter"}, args...)

	var stdout, stderr bytes.Buffer
	code := run(&stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func setRouterEnv(t *testing.T, address string) {
	t.Helper()
	t.Setenv("ISP_ENV_FILE", "")
	t.Setenv("ISP_CW_LOG_GROUP", "")
	t.Setenv("ISP_HISTORY_DB", "")
	t.Setenv("ISP_RTR_TIMEZONE", "")
	t.Setenv("ISP_RTR_UNAME", "admin")
	t.Setenv("ISP_RTR_PWORD", "secret")
	t.Setenv("ISP_RTR_ADDRESS", address)
}

func lastRuns(t *testing.T, path string) []model.Run {
	t.Helper()
	store, err := history.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("reopen history: %v", err)
	}
	defer store.Close()
	runs, err := store.LastRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("LastRuns: %v", err)
	}
	return runs
}

func TestRunClearedRouterLog(t *testing.T) {
	srv := newRouter(t, http.StatusOK, deviceLogResponse(""))
	setRouterEnv(t, srv.URL)
	dir := t.TempDir()
	db := filepath.Join(dir, "history.db")

	code, stdout, stderr := invoke(t, "--notifier", "none", "--always-notify",
		"--log-dir", filepath.Join(dir, "logs"), "--history-db", db)
	if code != 0 {
		t.Fatalf("exit code=%d\nstdout: %s\nstderr: %s", code, stdout, stderr)
	}

	reports, _ := filepath.Glob(filepath.Join(dir, "logs", "*-log_stats.txt"))
	if len(reports) != 1 {
		t.Fatalf("expected one report, got %v", reports)
	}
	data, err := os.ReadFile(reports[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Fatalf("expected empty report, got %q", data)
	}

	runs := lastRuns(t, db)
	if len(runs) != 1 || runs[0].LineCount != 0 || runs[0].ReportPath != reports[0] {
		t.Fatalf("unexpected history: %+v", runs)
	}
}

func TestRunFailureAfterHistoryOpen(t *testing.T) {
	srv := newRouter(t, http.StatusServiceUnavailable, "busy")
	setRouterEnv(t, srv.URL)
	dir := t.TempDir()
	db := filepath.Join(dir, "history.db")

	code, stdout, _ := invoke(t, "--notifier", "none", "--log-dir", filepath.Join(dir, "logs"), "--history-db", db)
	if code != 1 {
		t.Fatalf("exit code=%d, want 1", code)
	}
	if !strings.Contains(stdout, "run failed") {
		t.Fatalf("expected failure to be logged: %s", stdout)
	}
	if runs := lastRuns(t, db); len(runs) != 0 {
		t.Fatalf("failed run must not be recorded: %+v", runs)
	}
}

func TestRunShowHistoryWithoutRouterEnv(t *testing.T) {
	t.Setenv("ISP_ENV_FILE", "")
	t.Setenv("ISP_RTR_UNAME", "")
	t.Setenv("ISP_RTR_PWORD", "")
	t.Setenv("ISP_RTR_ADDRESS", "")
	db := filepath.Join(t.TempDir(), "history.db")

	store, err := history.Open(context.Background(), db)
	if err != nil {
		t.Fatal(err)
	}
	rec := model.Run{
		ID:         history.NewRunID(),
		StartedAt:  time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		ReportPath: "logs/2024-03-15-12-00-00-log_stats.txt",
		LineCount:  42,
		Alerting:   true,
		Alerts: []model.Alert{{
			Line:      "15.03.24 11:00:00 PPPoE error: dropped",
			Pattern:   "PPPoE error:",
			Timestamp: time.Date(2024, 3, 15, 11, 0, 0, 0, time.UTC),
		}},
	}
	if err := store.RecordRun(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	store.Close()

	code, stdout, stderr := invoke(t, "--show-history", "5", "--history-db", db)
	if code != 0 {
		t.Fatalf("exit code=%d\nstderr: %s", code, stderr)
	}
	for _, want := range []string{"ALERT", "42 lines", rec.ReportPath, "PPPoE error: dropped"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("history output missing %q:\n%s", want, stdout)
		}
	}
}

func TestRunMissingRouterEnv(t *testing.T) {
	t.Setenv("ISP_ENV_FILE", "")
	t.Setenv("ISP_RTR_UNAME", "")
	t.Setenv("ISP_RTR_PWORD", "")
	t.Setenv("ISP_RTR_ADDRESS", "")

	code, _, stderr := invoke(t, "--notifier", "none")
	if code != 1 {
		t.Fatalf("exit code=%d, want 1", code)
	}
	if !strings.Contains(stderr, "ISP_RTR_UNAME, ISP_RTR_PWORD, ISP_RTR_ADDRESS") {
		t.Fatalf("stderr=%q", stderr)
	}
}
